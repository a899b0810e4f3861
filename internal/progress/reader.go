package progress

import "io"

// UpdateFunc folds the length of one read into the accumulator and returns
// the new accumulator. It is called after every Read, including reads that
// return zero bytes, and must not block or fail.
type UpdateFunc[T any] func(acc T, n int) T

// Reader wraps an io.Reader and reports every read to an UpdateFunc.
// Bytes pass through unmodified.
type Reader[T any] struct {
	source      io.Reader
	accumulator T
	update      UpdateFunc[T]
}

// NewReader creates a progress reader with the given source, initial
// accumulator value and update function.
func NewReader[T any](source io.Reader, init T, update UpdateFunc[T]) *Reader[T] {
	return &Reader[T]{
		source:      source,
		accumulator: init,
		update:      update,
	}
}

// Read reads from the underlying reader and folds the number of bytes read
// into the accumulator. Errors from the source are returned unchanged.
func (r *Reader[T]) Read(p []byte) (int, error) {
	n, err := r.source.Read(p)
	r.accumulator = r.update(r.accumulator, n)
	return n, err
}

// Accumulator returns the current accumulator value.
func (r *Reader[T]) Accumulator() T {
	return r.accumulator
}

// ReadSeeker is a Reader over an io.ReadSeeker. Seeking is forwarded to the
// source and does not touch the accumulator.
type ReadSeeker[T any] struct {
	*Reader[T]
	seeker io.Seeker
}

// NewReadSeeker creates a seekable progress reader.
func NewReadSeeker[T any](source io.ReadSeeker, init T, update UpdateFunc[T]) *ReadSeeker[T] {
	return &ReadSeeker[T]{
		Reader: NewReader(source, init, update),
		seeker: source,
	}
}

// Seek implements io.Seeker.
func (r *ReadSeeker[T]) Seek(offset int64, whence int) (int64, error) {
	return r.seeker.Seek(offset, whence)
}

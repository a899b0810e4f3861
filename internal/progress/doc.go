// Package progress provides progress accounting for streaming reads.
//
// The central type is Reader, a decorator over any io.Reader that folds the
// length of every read into an accumulator of the caller's choosing. The
// accumulator is replaced, never mutated in place: each call to Read hands
// the previous value and the byte count to an update function and stores
// what it returns.
//
// # Usage
//
//	r := progress.NewReader(body, progress.Tally{},
//	    progress.PercentUpdate(logger, expectedSize, 1))
//
//	io.Copy(dst, r)
//	total := r.Accumulator().Bytes
//
// # Output Format
//
// PercentUpdate logs at TRACE level whenever the completed percentage moves
// past the last reported watermark by more than the configured step:
//
//	read 10485760 / 524288000 bytes, (~2%)
package progress

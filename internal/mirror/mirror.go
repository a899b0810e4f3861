// Package mirror copies downloaded archives into object storage.
//
// A mirror is any bucket gocloud.dev/blob can open (s3://, gs://, file://,
// mem://). The driver packages are linked in by the binary.
package mirror

import (
	"context"
	"fmt"
	"path"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ContentType is stored on mirrored objects.
const ContentType = "application/gzip"

// Error describes a failed storage operation.
type Error struct {
	Op   string
	Key  string
	Code gcerrors.ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("mirror %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("mirror %s %s: %s: %v", e.Op, e.Key, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, key string, err error) error {
	return &Error{Op: op, Key: key, Code: gcerrors.Code(err), Err: err}
}

// OpenBucket opens the bucket at url.
func OpenBucket(ctx context.Context, url string) (*blob.Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, wrap("open", "", err)
	}
	return b, nil
}

// Key returns the object key for a file name under prefix.
func Key(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Writer streams one object into a bucket. Nothing is visible in the bucket
// until Close succeeds.
type Writer struct {
	w      *blob.Writer
	cancel context.CancelFunc
	key    string
	n      int64
}

// Open starts writing key in bucket.
func Open(ctx context.Context, bucket *blob.Bucket, key string) (*Writer, error) {
	wctx, cancel := context.WithCancel(ctx)
	w, err := bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: ContentType})
	if err != nil {
		cancel()
		return nil, wrap("create", key, err)
	}
	return &Writer{w: w, cancel: cancel, key: key}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err != nil {
		return n, wrap("write", w.key, err)
	}
	return n, nil
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 {
	return w.n
}

// Key returns the object key being written.
func (w *Writer) Key() string {
	return w.key
}

// Close commits the object.
func (w *Writer) Close() error {
	defer w.cancel()
	if err := w.w.Close(); err != nil {
		return wrap("commit", w.key, err)
	}
	return nil
}

// Abort discards the object. The aborted upload's error is dropped since
// nothing is committed either way.
func (w *Writer) Abort() {
	w.cancel()
	_ = w.w.Close()
}

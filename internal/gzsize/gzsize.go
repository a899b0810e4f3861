// Package gzsize estimates the uncompressed size of a gzip stream from its
// trailer.
//
// The last four bytes of a gzip member hold ISIZE, the length of the
// original input modulo 2^32, little-endian:
//
//	  0   1   2   3   4   5   6   7
//	+---+---+---+---+---+---+---+---+
//	|     CRC32     |     ISIZE     |
//	+---+---+---+---+---+---+---+---+
//
// Inputs of 4 GiB or more wrap and read back smaller than they are. The
// value is only ever an estimate.
package gzsize

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	tgzhttp "github.com/ligustah/tgzget/internal/http"
	"github.com/ligustah/tgzget/internal/logging"
)

// TrailerSize is the length of the ISIZE field.
const TrailerSize = 4

var (
	// ErrShortRead is returned when the ranged body ends before four bytes.
	ErrShortRead = errors.New("gzsize: short read of size trailer")

	// ErrTooSmall is returned when the declared length cannot hold a trailer.
	ErrTooSmall = errors.New("gzsize: resource too small for a size trailer")
)

// UnexpectedContentLengthError is returned when the ranged response does not
// declare exactly TrailerSize bytes.
type UnexpectedContentLengthError struct {
	Length uint64
}

func (e *UnexpectedContentLengthError) Error() string {
	return fmt.Sprintf("unexpected content length: %d", e.Length)
}

// Getter is the part of the HTTP client the estimator needs.
type Getter interface {
	GetRange(ctx context.Context, url string, startByte, endByte uint64) (*tgzhttp.Response, error)
}

// FetchTrailer fetches the ISIZE field of the gzip resource at url, whose
// total length is length, with a single range request for its last four
// bytes.
func FetchTrailer(ctx context.Context, client Getter, url string, length uint64) ([TrailerSize]byte, error) {
	var buf [TrailerSize]byte
	if length < TrailerSize {
		return buf, ErrTooSmall
	}

	resp, err := client.GetRange(ctx, url, length-TrailerSize, length-1)
	if err != nil {
		return buf, err
	}
	defer resp.Body.Close()

	actual, err := resp.ContentLength()
	if err != nil {
		return buf, err
	}
	if actual != TrailerSize {
		return buf, &UnexpectedContentLengthError{Length: actual}
	}

	if _, err := io.ReadFull(resp.Body, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return buf, fmt.Errorf("%w: %w", ErrShortRead, err)
		}
		return buf, fmt.Errorf("read size trailer: %w", err)
	}
	return buf, nil
}

// Decode interprets a trailer as a little-endian uint32, widened.
func Decode(trailer [TrailerSize]byte) uint64 {
	return uint64(binary.LittleEndian.Uint32(trailer[:]))
}

// Estimate returns the uncompressed size of the gzip resource at url. Any
// failure is logged at TRACE and reported as ok == false; it never aborts
// the caller.
func Estimate(ctx context.Context, client Getter, url string, length uint64, logger *slog.Logger) (size uint64, ok bool) {
	logger.Log(ctx, logging.LevelTrace, "requesting size trailer", "url", url, "length", length)

	trailer, err := FetchTrailer(ctx, client, url, length)
	if err != nil {
		logger.Log(ctx, logging.LevelTrace, "uncompressed size unavailable", "error", err)
		return 0, false
	}

	size = Decode(trailer)
	logger.Log(ctx, logging.LevelTrace, "uncompressed size from trailer", "bytes", size)
	return size, true
}

// ReadTrailer reads the ISIZE field of a local gzip file and rewinds it to
// the start.
func ReadTrailer(rs io.ReadSeeker) ([TrailerSize]byte, error) {
	var buf [TrailerSize]byte
	if _, err := rs.Seek(-TrailerSize, io.SeekEnd); err != nil {
		return buf, fmt.Errorf("seek to size trailer: %w", err)
	}
	if _, err := io.ReadFull(rs, buf[:]); err != nil {
		return buf, fmt.Errorf("read size trailer: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return buf, fmt.Errorf("rewind: %w", err)
	}
	return buf, nil
}

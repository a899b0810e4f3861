package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"gocloud.dev/blob"

	"github.com/ligustah/tgzget/internal/extract"
	"github.com/ligustah/tgzget/internal/gzsize"
	tgzhttp "github.com/ligustah/tgzget/internal/http"
	"github.com/ligustah/tgzget/internal/logging"
	"github.com/ligustah/tgzget/internal/mirror"
	"github.com/ligustah/tgzget/internal/progress"
)

// ArchiveSuffix is removed from the archive path to name the extraction
// directory.
const ArchiveSuffix = ".tar.gz"

// UsageError is returned when the URL or output directory cannot be used.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Options configures the downloader.
type Options struct {
	// HTTPOptions configures the HTTP client when Client is nil.
	HTTPOptions tgzhttp.Options

	// Client overrides the HTTP client.
	Client *tgzhttp.Client

	// Logger receives progress and diagnostics. Default: discard.
	Logger *slog.Logger

	// ProgressStep is the minimum percentage advance between progress
	// lines. Default: 1
	ProgressStep float64

	// BufferSize is the copy buffer used while extracting files.
	BufferSize int

	// Mirror, when set, also receives the compressed bytes.
	Mirror *blob.Bucket

	// MirrorPrefix is prepended to the archive name to form the mirror key.
	MirrorPrefix string
}

// FileInfo contains metadata about the remote archive, taken from the
// response headers.
type FileInfo struct {
	URL           string
	Size          uint64
	AcceptsRanges bool
}

// Result describes a completed download.
type Result struct {
	ArchivePath string
	ExtractDir  string
	Info        FileInfo

	// Estimate is the uncompressed size from the remote trailer, valid if
	// EstimateOK.
	Estimate   uint64
	EstimateOK bool

	// TrailerSize is the ISIZE field of the archive as written to disk.
	TrailerSize uint64

	CompressedBytes   uint64
	UncompressedBytes uint64
	Extract           extract.Stats
	MirrorKey         string
	Elapsed           time.Duration
}

// OutputPath returns where the archive at rawURL is stored: the final path
// segment of the URL joined to outDir.
func OutputPath(rawURL, outDir string) (string, error) {
	name := rawURL[strings.LastIndex(rawURL, "/")+1:]
	if name == "" || name == "." || name == ".." {
		return "", &UsageError{Message: fmt.Sprintf("Could not construct file name from URL: %s", rawURL)}
	}
	return filepath.Join(outDir, name), nil
}

// ExtractDir returns the extraction directory for an archive path. Every
// occurrence of ArchiveSuffix is removed; a path without it is returned
// unchanged.
func ExtractDir(archivePath string) string {
	return strings.ReplaceAll(archivePath, ArchiveSuffix, "")
}

// NewFileInfo reads the archive metadata from a response.
func NewFileInfo(url string, resp *tgzhttp.Response) (FileInfo, error) {
	size, err := resp.ContentLength()
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		URL:           url,
		Size:          size,
		AcceptsRanges: resp.AcceptsRanges(),
	}, nil
}

// Download fetches the archive at rawURL into outDir and extracts it next
// to the archive file.
func Download(ctx context.Context, rawURL, outDir string, opts Options) (*Result, error) {
	start := time.Now()

	// Apply defaults
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.ProgressStep <= 0 {
		opts.ProgressStep = 1
	}
	if opts.HTTPOptions.MaxIdleConnsPerHost == 0 {
		opts.HTTPOptions.MaxIdleConnsPerHost = tgzhttp.DefaultOptions().MaxIdleConnsPerHost
	}
	client := opts.Client
	if client == nil {
		client = tgzhttp.NewClient(opts.HTTPOptions)
	}
	log := opts.Logger

	archivePath, err := OutputPath(rawURL, outDir)
	if err != nil {
		return nil, err
	}

	resp, err := client.Get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch archive: %w", err)
	}
	defer resp.Body.Close()

	log.Log(ctx, logging.LevelTrace, "response", "status", resp.StatusCode)
	log.Log(ctx, logging.LevelTrace, "returned headers", "headers", resp.Header)

	info, err := NewFileInfo(rawURL, resp)
	if err != nil {
		return nil, err
	}
	log.Log(ctx, logging.LevelTrace, fmt.Sprintf("Compressed size: %d", info.Size))
	log.Log(ctx, logging.LevelTrace, fmt.Sprintf("Accepts byte ranges: %t", info.AcceptsRanges))

	estimate, estimateOK := gzsize.Estimate(ctx, client, rawURL, info.Size, log)

	file, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	defer file.Close()

	var sink io.Writer = file
	var mirrored *mirror.Writer
	if opts.Mirror != nil {
		mirrored, err = mirror.Open(ctx, opts.Mirror, mirror.Key(opts.MirrorPrefix, filepath.Base(archivePath)))
		if err != nil {
			return nil, err
		}
		// Cleared once the upload is committed.
		defer func() {
			if mirrored != nil {
				mirrored.Abort()
			}
		}()
		sink = io.MultiWriter(file, mirrored)
	}

	compressed := progress.NewReader(resp.Body, uint64(0), progress.Count)
	teed := io.TeeReader(compressed, sink)

	gz, err := gzip.NewReader(teed)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	defer gz.Close()

	uncompressed := progress.NewReader(gz, progress.Tally{},
		progress.PercentUpdate(log, estimate, opts.ProgressStep))

	extractDir := ExtractDir(archivePath)
	stats, err := extract.Extract(ctx, uncompressed, extractDir, extract.Options{
		BufferSize: opts.BufferSize,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("extract archive: %w", err)
	}

	// The extractor stops at the end-of-archive marker. Drain the rest so
	// the gzip trailer is verified and the file on disk is complete.
	if _, err := io.Copy(io.Discard, uncompressed); err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if _, err := io.Copy(io.Discard, teed); err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	res := &Result{
		ArchivePath:       archivePath,
		ExtractDir:        extractDir,
		Info:              info,
		Estimate:          estimate,
		EstimateOK:        estimateOK,
		CompressedBytes:   compressed.Accumulator(),
		UncompressedBytes: uncompressed.Accumulator().Bytes,
		Extract:           stats,
	}

	trailer, err := gzsize.ReadTrailer(file)
	if err != nil {
		return nil, fmt.Errorf("read archive file: %w", err)
	}
	res.TrailerSize = gzsize.Decode(trailer)
	log.Log(ctx, logging.LevelTrace, "size trailer on disk", "bytes", res.TrailerSize)

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close archive file: %w", err)
	}

	if mirrored != nil {
		if err := mirrored.Close(); err != nil {
			return nil, err
		}
		res.MirrorKey = mirrored.Key()
		mirrored = nil
	}

	res.Elapsed = time.Since(start)
	logSummary(ctx, log, res)
	return res, nil
}

// logSummary logs the final status line.
func logSummary(ctx context.Context, log *slog.Logger, res *Result) {
	args := []any{
		"archive", res.ArchivePath,
		"extracted", res.ExtractDir,
		"compressed", humanize.IBytes(res.CompressedBytes),
		"uncompressed", humanize.IBytes(res.UncompressedBytes),
		"entries", res.Extract.Entries,
		"elapsed", progress.FormatDuration(res.Elapsed),
	}
	if secs := res.Elapsed.Seconds(); secs > 0 {
		args = append(args, "speed", humanize.IBytes(uint64(float64(res.CompressedBytes)/secs))+"/s")
	}
	if res.MirrorKey != "" {
		args = append(args, "mirror", res.MirrorKey)
	}
	log.InfoContext(ctx, "download complete", args...)
}

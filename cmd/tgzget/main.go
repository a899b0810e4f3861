package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/tgzget/internal/config"
	"github.com/ligustah/tgzget/internal/downloader"
	tgzhttp "github.com/ligustah/tgzget/internal/http"
	"github.com/ligustah/tgzget/internal/logging"
	"github.com/ligustah/tgzget/internal/mirror"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitNetworkError  = 3
	ExitHTTPError     = 4
	ExitMissingHeader = 5
	ExitIOError       = 6
	ExitStorageError  = 7
)

const usageText = `Usage: tgzget [options] <url> <output directory>

Download a .tar.gz archive into the output directory and extract it next
to the downloaded file while the download is running.

Options:`

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("tgzget", flag.ContinueOnError)
	flags.SetOutput(stderr)

	configPath := flags.String("config", "", "Path to a YAML config file")
	logLevel := flags.String("log-level", "", "Log level: trace, debug, info, warn or error (default trace)")
	mirrorURL := flags.String("mirror", "", "Bucket URL that also receives the compressed archive")

	flags.Usage = func() {
		fmt.Fprintln(stderr, usageText)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath, config.Config{
		LogLevel: *logLevel,
		Mirror:   config.MirrorConfig{Bucket: *mirrorURL},
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	logger := logging.New(stderr, level, cfg.Colors)

	rawURL, outDir, err := parseArgs(flags.Args())
	if err != nil {
		return fail(stderr, flags, err)
	}

	outputPath, err := downloader.OutputPath(rawURL, outDir)
	if err != nil {
		return fail(stderr, flags, err)
	}
	fmt.Fprintf(stdout, "Output file path: %s\n", outputPath)

	ctx := context.Background()
	opts := downloader.Options{
		HTTPOptions: tgzhttp.Options{
			MaxIdleConnsPerHost: cfg.MaxIdleConns,
			Timeout:             cfg.Timeout,
			UserAgent:           cfg.UserAgent,
		},
		Logger:       logger,
		ProgressStep: cfg.ProgressStep,
		BufferSize:   int(cfg.BufferSize),
		MirrorPrefix: cfg.Mirror.Prefix,
	}

	if cfg.Mirror.Bucket != "" {
		bucket, err := mirror.OpenBucket(ctx, cfg.Mirror.Bucket)
		if err != nil {
			return fail(stderr, flags, err)
		}
		defer bucket.Close()
		opts.Mirror = bucket
	}

	if _, err := downloader.Download(ctx, rawURL, outDir, opts); err != nil {
		return fail(stderr, flags, err)
	}
	return ExitSuccess
}

// loadConfig layers defaults, the optional config file, the environment
// and flag overrides, then validates the result.
func loadConfig(path string, overrides config.Config) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}
	cfg = cfg.Merge(overrides)
	return cfg, cfg.Validate()
}

// parseArgs checks the positional arguments.
func parseArgs(args []string) (rawURL, outDir string, err error) {
	if len(args) < 1 || args[0] == "" {
		return "", "", &downloader.UsageError{Message: "missing URL argument"}
	}
	if len(args) < 2 {
		return "", "", &downloader.UsageError{Message: "missing output directory argument"}
	}
	if len(args) > 2 {
		return "", "", &downloader.UsageError{Message: fmt.Sprintf("unexpected arguments: %v", args[2:])}
	}

	rawURL, outDir = args[0], args[1]
	info, err := os.Stat(outDir)
	if err != nil {
		return "", "", &downloader.UsageError{Message: fmt.Sprintf("output directory %s does not exist", outDir)}
	}
	if !info.IsDir() {
		return "", "", &downloader.UsageError{Message: fmt.Sprintf("%s is not a directory", outDir)}
	}
	return rawURL, outDir, nil
}

// fail prints err and returns its exit code. Usage errors also print the
// usage text.
func fail(stderr io.Writer, flags *flag.FlagSet, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	code := exitCode(err)
	if code == ExitInvalidArgs {
		flags.Usage()
	}
	return code
}

func exitCode(err error) int {
	var (
		usageErr   *downloader.UsageError
		netErr     *tgzhttp.NetworkError
		statusErr  *tgzhttp.StatusError
		headerErr  *tgzhttp.MissingHeaderError
		storageErr *mirror.Error
		pathErr    *fs.PathError
	)
	switch {
	case errors.As(err, &usageErr):
		return ExitInvalidArgs
	case errors.As(err, &netErr):
		return ExitNetworkError
	case errors.As(err, &statusErr):
		return ExitHTTPError
	case errors.As(err, &headerErr):
		return ExitMissingHeader
	case errors.As(err, &storageErr):
		return ExitStorageError
	case errors.As(err, &pathErr):
		return ExitIOError
	default:
		return ExitGeneralError
	}
}

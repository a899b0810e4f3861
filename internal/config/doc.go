// Package config defines configuration structures for the tgzget CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (TGZGET_ prefix, optionally from a .env file)
//   - YAML configuration file
//
// Later sources override earlier ones: defaults, then file, then
// environment, then flags.
//
// # Structure
//
//	type Config struct {
//	    LogLevel     string
//	    Colors       bool
//	    UserAgent    string
//	    Timeout      time.Duration
//	    MaxIdleConns int
//	    BufferSize   int64
//	    ProgressStep float64
//	    Mirror       MirrorConfig
//	}
//
//	type MirrorConfig struct {
//	    Bucket string
//	    Prefix string
//	}
package config

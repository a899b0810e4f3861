// Package extract materializes a tar stream as a directory tree.
//
// Entries are processed as they are read, so the archive is never held in
// memory or on disk. Entries whose path or link target would land outside
// the destination directory are skipped. Paths are checked against the
// filesystem, not just their text, so links created by earlier entries
// cannot be used to climb out.
package extract

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ligustah/tgzget/internal/logging"
)

// DefaultBufferSize is the copy buffer used for file contents.
const DefaultBufferSize = 32 * 1024

// Options configures extraction.
type Options struct {
	// BufferSize is the size of the buffer used to copy file contents.
	// Default: DefaultBufferSize
	BufferSize int

	// Logger receives per-entry DEBUG/TRACE lines and warnings for
	// skipped entries. Default: discard.
	Logger *slog.Logger
}

// Stats summarizes an extraction.
type Stats struct {
	Entries int
	Files   int
	Dirs    int
	Links   int
	Skipped int
	Bytes   int64
}

// Extract reads a tar stream from r and writes its entries below dest,
// creating dest if needed. It stops at the end-of-archive marker and does
// not read r any further.
func Extract(ctx context.Context, r io.Reader, dest string, opts Options) (Stats, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	var stats Stats
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return stats, fmt.Errorf("create destination: %w", err)
	}
	root, err := realPath(dest)
	if err != nil {
		return stats, fmt.Errorf("resolve destination: %w", err)
	}

	buf := make([]byte, opts.BufferSize)
	tr := tar.NewReader(r)

	// Directory modes and times are applied last so that read-only
	// directories can still be filled.
	var dirs []dirMeta

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return stats, finishDirs(dirs)
		}
		// With GODEBUG=tarinsecurepath=0 the header is still valid; the
		// path check below skips the entry.
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return stats, fmt.Errorf("read archive: %w", err)
		}
		stats.Entries++

		target, ok := entryPath(root, hdr.Name)
		if !ok || (target == root && hdr.Typeflag != tar.TypeDir) {
			opts.Logger.Warn("skipping entry outside destination", "name", hdr.Name)
			stats.Skipped++
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			// An existing link in place of the directory is followed.
			if target, err = resolve(filepath.Dir(target), filepath.Base(target)); err != nil || !inside(root, target) {
				opts.Logger.Warn("skipping directory outside destination", "name", hdr.Name)
				stats.Skipped++
				continue
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, fmt.Errorf("create directory %s: %w", hdr.Name, err)
			}
			dirs = append(dirs, dirMeta{path: target, hdr: hdr})
			stats.Dirs++

		case tar.TypeReg:
			n, err := writeFile(target, tr, hdr, buf)
			if err != nil {
				return stats, fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			stats.Files++
			stats.Bytes += n

		case tar.TypeSymlink:
			if !symlinkInside(root, target, hdr.Linkname) {
				opts.Logger.Warn("skipping symlink outside destination", "name", hdr.Name, "target", hdr.Linkname)
				stats.Skipped++
				continue
			}
			if err := replace(target, func() error { return os.Symlink(hdr.Linkname, target) }); err != nil {
				return stats, fmt.Errorf("symlink %s: %w", hdr.Name, err)
			}
			stats.Links++

		case tar.TypeLink:
			source, ok := entryPath(root, hdr.Linkname)
			if !ok || source == root {
				opts.Logger.Warn("skipping hard link outside destination", "name", hdr.Name, "target", hdr.Linkname)
				stats.Skipped++
				continue
			}
			if err := replace(target, func() error { return os.Link(source, target) }); err != nil {
				return stats, fmt.Errorf("link %s: %w", hdr.Name, err)
			}
			stats.Links++

		default:
			opts.Logger.Debug("skipping unsupported entry", "name", hdr.Name, "type", string(hdr.Typeflag))
			stats.Skipped++
			continue
		}

		opts.Logger.Log(ctx, logging.LevelTrace, "extracted", "name", hdr.Name, "size", hdr.Size)
	}
}

// localName cleans an archive path into a path relative to the
// destination. Leading slashes are dropped; paths that climb out are
// rejected.
func localName(name string) (string, bool) {
	name = filepath.FromSlash(strings.TrimLeft(name, "/"))
	if name == "" {
		name = "."
	}
	if !filepath.IsLocal(name) {
		return "", false
	}
	return filepath.Clean(name), true
}

// entryPath returns where the archive path name lands below root, with
// symlinks already on disk in its parent directories resolved. The last
// element is left unresolved since it gets replaced. ok is false when the
// parent resolves outside root.
func entryPath(root, name string) (string, bool) {
	name, ok := localName(name)
	if !ok {
		return "", false
	}
	if name == "." {
		return root, true
	}
	parent, err := resolve(root, filepath.Dir(name))
	if err != nil || !inside(root, parent) {
		return "", false
	}
	return filepath.Join(parent, filepath.Base(name)), true
}

// symlinkInside reports whether a link at target pointing to linkname
// resolves inside root, following links that already exist.
func symlinkInside(root, target, linkname string) bool {
	if filepath.IsAbs(linkname) {
		return false
	}
	resolved, err := resolve(filepath.Dir(target), linkname)
	return err == nil && inside(root, resolved)
}

// resolve walks rel from the real directory base one element at a time.
// Existing symlinks are followed before ".." is applied, the way the
// kernel would; elements that do not exist yet are taken literally.
func resolve(base, rel string) (string, error) {
	cur := base
	for _, elem := range strings.Split(filepath.ToSlash(rel), "/") {
		switch elem {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}
		cur = filepath.Join(cur, elem)

		fi, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			// Dangling links fail here and the entry is skipped.
			if cur, err = filepath.EvalSymlinks(cur); err != nil {
				return "", err
			}
		}
	}
	return cur, nil
}

// inside reports whether path is root or below it. Both must be resolved.
func inside(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && filepath.IsLocal(rel)
}

func realPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

type dirMeta struct {
	path string
	hdr  *tar.Header
}

// finishDirs applies directory permissions and times, deepest first so
// that setting a parent does not disturb its children.
func finishDirs(dirs []dirMeta) error {
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := os.Chmod(d.path, d.hdr.FileInfo().Mode().Perm()); err != nil {
			return fmt.Errorf("set mode %s: %w", d.hdr.Name, err)
		}
		if err := setTimes(d.path, d.hdr); err != nil {
			return fmt.Errorf("set times %s: %w", d.hdr.Name, err)
		}
	}
	return nil
}

func setTimes(path string, hdr *tar.Header) error {
	if hdr.ModTime.IsZero() {
		return nil
	}
	atime := hdr.AccessTime
	if atime.IsZero() {
		atime = hdr.ModTime
	}
	return os.Chtimes(path, atime, hdr.ModTime)
}

// replace removes whatever is at path, then calls create.
func replace(path string, create func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return create()
}

// writerOnly hides optional interfaces so io.CopyBuffer uses buf.
type writerOnly struct {
	io.Writer
}

func writeFile(target string, r io.Reader, hdr *tar.Header, buf []byte) (int64, error) {
	var f *os.File
	err := replace(target, func() error {
		var err error
		f, err = os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
		return err
	})
	if err != nil {
		return 0, err
	}

	n, err := io.CopyBuffer(writerOnly{f}, r, buf)
	if err != nil {
		f.Close()
		return n, err
	}
	if err := f.Close(); err != nil {
		return n, err
	}

	return n, setTimes(target, hdr)
}

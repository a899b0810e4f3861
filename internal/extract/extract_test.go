package extract

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type entry struct {
	hdr  tar.Header
	body string
}

func buildTar(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := e.hdr
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		if e.body != "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	mtime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	data := buildTar(t, []entry{
		{hdr: tar.Header{Name: "archive/", Typeflag: tar.TypeDir, Mode: 0o755}},
		{hdr: tar.Header{Name: "archive/README", Typeflag: tar.TypeReg, ModTime: mtime}, body: "hello"},
		{hdr: tar.Header{Name: "archive/bin/run.sh", Typeflag: tar.TypeReg, Mode: 0o755}, body: "#!/bin/sh\n"},
		{hdr: tar.Header{Name: "archive/latest", Typeflag: tar.TypeSymlink, Linkname: "README"}},
		{hdr: tar.Header{Name: "archive/copy", Typeflag: tar.TypeLink, Linkname: "archive/README"}},
	})

	dest := filepath.Join(t.TempDir(), "out")
	stats, err := Extract(context.Background(), bytes.NewReader(data), dest, Options{})
	require.NoError(t, err)
	require.Equal(t, Stats{Entries: 5, Files: 2, Dirs: 1, Links: 2, Bytes: 15}, stats)

	content, err := os.ReadFile(filepath.Join(dest, "archive", "README"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))

	info, err := os.Stat(filepath.Join(dest, "archive", "README"))
	require.NoError(t, err)
	require.True(t, info.ModTime().Equal(mtime))

	info, err = os.Stat(filepath.Join(dest, "archive", "bin", "run.sh"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode().Perm()&0o100)

	link, err := os.Readlink(filepath.Join(dest, "archive", "latest"))
	require.NoError(t, err)
	require.Equal(t, "README", link)

	content, err = os.ReadFile(filepath.Join(dest, "archive", "copy"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}

func TestExtractSkipsEntriesOutsideDestination(t *testing.T) {
	data := buildTar(t, []entry{
		{hdr: tar.Header{Name: "../escape.txt", Typeflag: tar.TypeReg}, body: "nope"},
		{hdr: tar.Header{Name: "a/../../escape2.txt", Typeflag: tar.TypeReg}, body: "nope"},
		{hdr: tar.Header{Name: "evil", Typeflag: tar.TypeSymlink, Linkname: "../../etc"}},
		{hdr: tar.Header{Name: "abs", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}},
		{hdr: tar.Header{Name: "hard", Typeflag: tar.TypeLink, Linkname: "../outside"}},
		{hdr: tar.Header{Name: "/rooted.txt", Typeflag: tar.TypeReg}, body: "ok"},
		// Each link looks harmless as text; together they point above dest.
		{hdr: tar.Header{Name: "s", Typeflag: tar.TypeSymlink, Linkname: "."}},
		{hdr: tar.Header{Name: "t", Typeflag: tar.TypeSymlink, Linkname: "s/.."}},
		{hdr: tar.Header{Name: "t/escaped.txt", Typeflag: tar.TypeReg}, body: "pwned"},
	})

	root := t.TempDir()
	dest := filepath.Join(root, "out")
	stats, err := Extract(context.Background(), bytes.NewReader(data), dest, Options{})
	require.NoError(t, err)
	require.Equal(t, 6, stats.Skipped)
	require.Equal(t, 2, stats.Files)
	require.Equal(t, 1, stats.Links)

	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "escaped.txt"))
	require.True(t, os.IsNotExist(err))

	// t was never linked, so t/escaped.txt became a real directory in dest.
	info, err := os.Lstat(filepath.Join(dest, "t"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	content, err := os.ReadFile(filepath.Join(dest, "t", "escaped.txt"))
	require.NoError(t, err)
	require.Equal(t, "pwned", string(content))
	_, err = os.Lstat(filepath.Join(dest, "evil"))
	require.True(t, os.IsNotExist(err))

	// leading slashes are stripped
	content, err = os.ReadFile(filepath.Join(dest, "rooted.txt"))
	require.NoError(t, err)
	require.Equal(t, "ok", string(content))
}

func TestExtractDoesNotWriteThroughExistingLinks(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret"), []byte("secret"), 0o600))
	require.NoError(t, os.Symlink("..", filepath.Join(dest, "up")))
	before, err := os.Stat(root)
	require.NoError(t, err)

	data := buildTar(t, []entry{
		{hdr: tar.Header{Name: "up/written.txt", Typeflag: tar.TypeReg}, body: "x"},
		{hdr: tar.Header{Name: "up/newdir/", Typeflag: tar.TypeDir, Mode: 0o755}},
		{hdr: tar.Header{Name: "up/", Typeflag: tar.TypeDir, Mode: 0o555}},
		{hdr: tar.Header{Name: "stolen", Typeflag: tar.TypeLink, Linkname: "up/secret"}},
		{hdr: tar.Header{Name: "via", Typeflag: tar.TypeSymlink, Linkname: "up/secret"}},
	})

	stats, err := Extract(context.Background(), bytes.NewReader(data), dest, Options{})
	require.NoError(t, err)
	require.Equal(t, 5, stats.Skipped)
	require.Zero(t, stats.Files+stats.Dirs+stats.Links)

	_, err = os.Stat(filepath.Join(root, "written.txt"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "newdir"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(dest, "stolen"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(dest, "via"))
	require.True(t, os.IsNotExist(err))

	after, err := os.Stat(root)
	require.NoError(t, err)
	require.Equal(t, before.Mode().Perm(), after.Mode().Perm())
}

func TestExtractAppliesDirectoryMetadata(t *testing.T) {
	mtime := time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)
	data := buildTar(t, []entry{
		{hdr: tar.Header{Name: "ro/", Typeflag: tar.TypeDir, Mode: 0o555, ModTime: mtime}},
		{hdr: tar.Header{Name: "ro/file", Typeflag: tar.TypeReg}, body: "x"},
		{hdr: tar.Header{Name: "ro/sub/", Typeflag: tar.TypeDir, Mode: 0o750, ModTime: mtime}},
	})

	dest := t.TempDir()
	t.Cleanup(func() { os.Chmod(filepath.Join(dest, "ro"), 0o755) })

	stats, err := Extract(context.Background(), bytes.NewReader(data), dest, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Dirs)
	require.Equal(t, 1, stats.Files)

	info, err := os.Stat(filepath.Join(dest, "ro"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o555), info.Mode().Perm())
	require.True(t, info.ModTime().Equal(mtime))

	info, err = os.Stat(filepath.Join(dest, "ro", "sub"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o750), info.Mode().Perm())
	require.True(t, info.ModTime().Equal(mtime))
}

func TestExtractOverwritesExistingFiles(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "file.txt"), []byte("old contents that are longer"), 0o644))

	data := buildTar(t, []entry{{hdr: tar.Header{Name: "file.txt", Typeflag: tar.TypeReg}, body: "new"}})
	_, err := Extract(context.Background(), bytes.NewReader(data), dest, Options{BufferSize: 1})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dest, "file.txt"))
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}

func TestExtractSkipsUnsupportedTypes(t *testing.T) {
	data := buildTar(t, []entry{
		{hdr: tar.Header{Name: "fifo", Typeflag: tar.TypeFifo}},
		{hdr: tar.Header{Name: "file", Typeflag: tar.TypeReg}, body: "x"},
	})

	stats, err := Extract(context.Background(), bytes.NewReader(data), t.TempDir(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, 1, stats.Files)
}

func TestExtractMalformed(t *testing.T) {
	_, err := Extract(context.Background(), bytes.NewReader(bytes.Repeat([]byte("garbage!"), 128)), t.TempDir(), Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "read archive")
}

func TestExtractTruncated(t *testing.T) {
	data := buildTar(t, []entry{{hdr: tar.Header{Name: "file", Typeflag: tar.TypeReg}, body: string(bytes.Repeat([]byte("a"), 2048))}})

	_, err := Extract(context.Background(), bytes.NewReader(data[:1024]), t.TempDir(), Options{})
	require.Error(t, err)
}

func TestExtractStopsOnCancelledContext(t *testing.T) {
	data := buildTar(t, []entry{{hdr: tar.Header{Name: "file", Typeflag: tar.TypeReg}, body: "x"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, bytes.NewReader(data), t.TempDir(), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"a/b.txt", filepath.Join("a", "b.txt"), true},
		{"./a", "a", true},
		{"/abs/file", filepath.Join("abs", "file"), true},
		{"./", ".", true},
		{"a/../b", "b", true},
		{"../x", "", false},
		{"a/../../x", "", false},
	}

	for _, tt := range tests {
		got, ok := localName(tt.name)
		require.Equal(t, tt.ok, ok, tt.name)
		require.Equal(t, tt.want, got, tt.name)
	}
}

func TestResolveFollowsLinksBeforeParent(t *testing.T) {
	root, err := realPath(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Symlink(".", filepath.Join(root, "s")))

	got, err := resolve(root, "s/..")
	require.NoError(t, err)
	require.Equal(t, filepath.Dir(root), got)
	require.False(t, inside(root, got))

	got, err = resolve(root, "missing/../file")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "file"), got)
	require.True(t, inside(root, got))
}

//go:build integration

package downloader_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/tgzget/internal/downloader"
	"github.com/ligustah/tgzget/internal/testutils"
)

func TestIntegrationMirrorToMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sizes := map[string]int64{
		"small.tar.gz":  1024 * 1024,
		"medium.tar.gz": 10 * 1024 * 1024,
		"large.tar.gz":  64 * 1024 * 1024,
	}

	t.Log("Generating test archives...")
	var files []testutils.TestFile
	payloads := make(map[string][]byte)
	for name, size := range sizes {
		data := testutils.GenerateTestData(t, size)
		payloads[name] = data
		files = append(files, testutils.TestFile{
			Name: name,
			Data: testutils.BuildTarGz(t, []testutils.Entry{{Name: "payload.bin", Data: data}}),
		})
	}

	server := testutils.StartTestHTTPServer(t, files)

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "tgzget-test")
	defer minio.Close(ctx)

	bucket, err := minio.OpenBucket(ctx)
	require.NoError(t, err)
	defer bucket.Close()

	for _, f := range files {
		t.Run(f.Name, func(t *testing.T) {
			outDir := t.TempDir()
			res, err := downloader.Download(ctx, server.URL+"/"+f.Name, outDir, downloader.Options{
				Mirror:       bucket,
				MirrorPrefix: "archives",
			})
			require.NoError(t, err)

			got, err := os.ReadFile(filepath.Join(res.ExtractDir, "payload.bin"))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(payloads[f.Name], got), "extracted payload differs")

			r, err := bucket.NewReader(ctx, "archives/"+f.Name, nil)
			require.NoError(t, err)
			defer r.Close()
			testutils.CompareReaderToData(t, r, f.Data)
		})
	}
}

//go:build integration

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/tgzget/internal/testutils"
)

func TestIntegrationCLIMirrorToMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	archive := testutils.BuildTarGz(t, []testutils.Entry{
		{Name: "payload.bin", Data: testutils.GenerateTestData(t, 5*1024*1024)},
	})
	server := testutils.StartTestHTTPServer(t, []testutils.TestFile{{Name: "payload.tar.gz", Data: archive}})

	minio := testutils.StartMinioContainer(t, ctx, "cli-test-bucket")
	defer minio.Close(ctx)

	t.Setenv("TGZGET_MIRROR_PREFIX", "cli")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-mirror", minio.BucketURL, server.URL + "/payload.tar.gz", t.TempDir()}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())

	bucket, err := minio.OpenBucket(ctx)
	require.NoError(t, err)
	defer bucket.Close()

	got, err := bucket.ReadAll(ctx, "cli/payload.tar.gz")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(archive, got), "mirrored archive differs")
}

// Package downloader streams a gzip-compressed tar archive from an HTTP URL
// to disk while extracting it.
//
// The network body is read exactly once. Every byte is copied to the local
// archive file (and optionally to a mirror bucket) as it passes through a
// tee, then decompressed, counted for progress, and handed to the tar
// extractor, all on the calling goroutine:
//
//	body -> count -> tee(file[, mirror]) -> gunzip -> progress -> untar
//
// Before the transfer starts a range request for the last four bytes of
// the resource yields the gzip ISIZE field, which is used as the progress
// denominator. If that request fails for any reason the download proceeds
// without percentages.
//
// # Usage
//
//	res, err := downloader.Download(ctx, url, outDir, downloader.Options{
//	    Logger: logger,
//	})
//	// res.ArchivePath, res.ExtractDir
//
// # Failure
//
// Any failure of the main request, the local file, decompression or
// extraction is returned and ends the operation. Nothing is retried or
// resumed.
package downloader

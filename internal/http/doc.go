// Package http provides the HTTP client used to fetch archives.
//
// This package handles:
//   - Plain GET requests for the full resource
//   - Range requests for a byte window of the resource
//   - Typed access to Content-Length and Accept-Ranges
//   - Typed errors for transport failures, non-success status codes and
//     missing headers
//
// Requests are never retried.
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	resp, err := client.Get(ctx, url)
//	defer resp.Body.Close()
//	size, err := resp.ContentLength()
//
//	// Fetch the last four bytes
//	tail, err := client.GetRange(ctx, url, size-4, size-1)
package http

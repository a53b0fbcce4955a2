package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// downloadHeaderTimeout bounds how long the receiver waits for the
	// hub to start sending before declaring failure. Generous because
	// payloads run to tens of GB and the hub may be mid-sweep.
	downloadHeaderTimeout = 30 * time.Second

	downloadChunkSize = 1 << 20
)

// DownloadFile fetches a transfer payload into destDir, resuming from
// any existing partial file via a Range request. The file is written
// under a .part suffix and renamed into place only on completion;
// partial data never takes the final name. Returns the final path.
func DownloadFile(ctx context.Context, url, destDir, filename string, onProgress func(transferred, total int64)) (string, error) {
	if strings.ContainsAny(filename, "/\\") {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating destination dir: %w", err)
	}
	finalPath := filepath.Join(destDir, filename)
	partPath := finalPath + ".part"

	var offset int64
	if info, err := os.Stat(partPath); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	httpClient := &http.Client{
		Transport: &http.Transport{ResponseHeaderTimeout: downloadHeaderTimeout},
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	var total int64
	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		// Full payload; any partial data is stale.
		offset = 0
		flags |= os.O_TRUNC
		total = resp.ContentLength
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		total = totalFromContentRange(resp.Header.Get("Content-Range"))
		if total < 0 {
			total = offset + resp.ContentLength
		}
	default:
		return "", fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", partPath, err)
	}

	written := offset
	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				f.Close()
				return "", fmt.Errorf("writing %s: %w", partPath, err)
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return "", fmt.Errorf("reading payload: %w", readErr)
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if total > 0 && written != total {
		return "", fmt.Errorf("short payload: got %d of %d bytes", written, total)
	}
	if err := os.Rename(partPath, finalPath); err != nil {
		return "", fmt.Errorf("finalizing %s: %w", finalPath, err)
	}
	return finalPath, nil
}

// totalFromContentRange extracts the total size from a
// "bytes start-end/total" header, or -1.
func totalFromContentRange(h string) int64 {
	_, totalPart, ok := strings.Cut(h, "/")
	if !ok {
		return -1
	}
	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return -1
	}
	return total
}

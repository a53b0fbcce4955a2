package transfer

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cuecast/internal/models"
)

// progressEmitEvery throttles mid-stream progress notifications.
const progressEmitEvery = time.Second

// ServeFile streams a transfer's payload. A single Range header selects
// a byte window (206 + Content-Range); without one the whole file is
// served. Progress advances after each chunk write returns, so it
// reflects delivery to the transport, not disk reads.
func (c *Coordinator) ServeFile(w http.ResponseWriter, r *http.Request, id string) {
	e, ok := c.lookup(id)
	if !ok {
		http.Error(w, "no such transfer", http.StatusNotFound)
		return
	}
	t := e.snapshot()
	if isTerminal(t.Status) && t.Status == models.TransferFailed {
		http.Error(w, "transfer cancelled", http.StatusGone)
		return
	}

	f, err := os.Open(e.path)
	if err != nil {
		c.fail(e, fmt.Sprintf("opening source: %v", err))
		http.Error(w, "source unreadable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	size := t.TotalBytes
	start, end := int64(0), size-1
	partial := false
	if h := r.Header.Get("Range"); h != "" {
		start, end, err = parseRange(h, size)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
			return
		}
		partial = true
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		c.fail(e, fmt.Sprintf("seeking source: %v", err))
		http.Error(w, "source unreadable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", t.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	c.markDownloading(e)
	err = c.stream(w, r, e, f, start, end)
	switch {
	case err != nil:
		c.fail(e, err.Error())
	case end == size-1:
		// The receiver has (or now holds) the final byte.
		c.complete(e)
	default:
		c.emit(e.snapshot())
	}
}

func (c *Coordinator) markDownloading(e *entry) {
	e.mu.Lock()
	changed := e.t.Status == models.TransferPending
	if changed {
		e.t.Status = models.TransferDownloading
	}
	t := e.t
	e.mu.Unlock()
	if changed {
		c.emit(t)
	}
}

// stream copies [start,end] in bounded chunks, recording progress after
// each write is accepted by the transport.
func (c *Coordinator) stream(w http.ResponseWriter, r *http.Request, e *entry, f *os.File, start, end int64) error {
	buf := make([]byte, c.chunkSize)
	flusher, _ := w.(http.Flusher)
	pos := start
	lastEmit := time.Now()

	for pos <= end {
		select {
		case <-e.cancel:
			return errors.New("superseded mid-stream")
		case <-r.Context().Done():
			return fmt.Errorf("receiver gone: %v", r.Context().Err())
		default:
		}

		n := int64(len(buf))
		if remaining := end - pos + 1; remaining < n {
			n = remaining
		}
		if c.limiter != nil {
			if err := c.limiter.WaitN(r.Context(), int(n)); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}
		if _, err := io.ReadFull(f, buf[:n]); err != nil {
			return fmt.Errorf("reading source at %d: %w", pos, err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("writing chunk at %d: %w", pos, err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		pos += n

		e.mu.Lock()
		e.t.BytesTransferred = pos
		t := e.t
		e.mu.Unlock()
		if time.Since(lastEmit) >= progressEmitEvery {
			lastEmit = time.Now()
			c.emit(t)
		}
	}
	return nil
}

// parseRange handles a single HTTP byte range: "bytes=a-b", open-ended
// "bytes=a-", and suffix "bytes=-n".
func parseRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range unit in %q", header)
	}
	if strings.Contains(spec, ",") {
		return 0, 0, errors.New("multiple ranges not supported")
	}
	lo, hi, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	if lo == "" {
		// Suffix form: last hi bytes.
		n, err := strconv.ParseInt(hi, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	start, err = strconv.ParseInt(lo, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	if start >= size {
		return 0, 0, fmt.Errorf("range start %d beyond size %d", start, size)
	}
	if hi == "" {
		return start, size - 1, nil
	}
	end, err = strconv.ParseInt(hi, 10, 64)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

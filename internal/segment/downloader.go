// Package segment fetches the ordered segment URLs of a stream into a single
// temp file with chunked progress reporting.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vmunix/streamgrab/internal/control"
	"github.com/vmunix/streamgrab/internal/metrics"
)

// ChunkSize is the unit of progress for single-URL downloads.
const ChunkSize = 1 << 20

// Progress is a snapshot of a running download. For multi-segment streams a
// unit is one segment; for a single URL it is one ChunkSize chunk.
type Progress struct {
	Done  int64
	Total int64
	Bytes int64
}

// Percent returns completion in the range 0-100, or 0 if the total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total) * 100
}

// ProgressFunc receives progress updates. It is called from the
// downloading goroutine and must not block.
type ProgressFunc func(Progress)

// Downloader fetches segments sequentially with one shared HTTP client.
// There are no retries: a failed segment fails the download, except on the
// last segment of a multi-segment stream, where very short items commonly
// list a spurious trailing segment.
type Downloader struct {
	client *http.Client
	idle   time.Duration
	abort  *control.Flag
	log    *slog.Logger
}

// New creates a downloader. client bounds connection setup; idle bounds the
// time a request may go without receiving any body data, and zero disables
// it. abort may be nil.
func New(client *http.Client, idle time.Duration, abort *control.Flag, log *slog.Logger) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Downloader{client: client, idle: idle, abort: abort, log: log}
}

// Fetch downloads urls in order, appending each to dst, and returns dst.
func (d *Downloader) Fetch(ctx context.Context, urls []string, dst string, onProgress ProgressFunc) (string, error) {
	if len(urls) == 0 {
		return "", ErrNoURLs
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var p Progress
	multi := len(urls) > 1
	if multi {
		p.Total = int64(len(urls))
	}

	for i, u := range urls {
		if d.abort.IsSet() {
			return "", ErrAborted
		}
		last := i == len(urls)-1

		err := d.fetchOne(ctx, u, f, &p, multi, onProgress)
		if err == nil {
			continue
		}

		var httpErr *HTTPError
		isHTTP := errors.As(err, &httpErr)
		if isHTTP {
			metrics.RecordSegmentFailure(last)
		}
		complete(&p, onProgress)

		// A single URL is the whole stream, not a trailing extra, so its
		// failure is never tolerated.
		if isHTTP && last && multi {
			d.log.Debug("ignoring failed trailing segment", "segment", i, "status", httpErr.StatusCode)
			break
		}
		return "", fmt.Errorf("segment %d of %d: %w", i+1, len(urls), err)
	}

	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	complete(&p, onProgress)

	d.log.Debug("segments fetched", "segments", len(urls), "size", humanize.Bytes(uint64(p.Bytes)))
	return dst, nil
}

func (d *Downloader) fetchOne(ctx context.Context, url string, w io.Writer, p *Progress, multi bool, report ProgressFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled atomic.Bool
	var idle *time.Timer
	if d.idle > 0 {
		idle = time.AfterFunc(d.idle, func() {
			stalled.Store(true)
			cancel()
		})
		defer idle.Stop()
	}
	wrap := func(op string, err error) error {
		if stalled.Load() {
			return fmt.Errorf("%s: %w after %s", op, ErrStalled, d.idle)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return wrap("fetch", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	if !multi && resp.ContentLength > 0 {
		p.Total = (resp.ContentLength + ChunkSize - 1) / ChunkSize
	}

	var body io.Reader = resp.Body
	if idle != nil {
		body = &idleReader{r: resp.Body, timer: idle, idle: d.idle}
	}

	buf := make([]byte, ChunkSize)
	for {
		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("write temp file: %w", err)
			}
			p.Bytes += int64(n)
			metrics.AddDownloadedBytes(n)
			if !multi {
				p.Done++
				report(*p)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return wrap("read body", rerr)
		}
		if !multi && d.abort.IsSet() {
			return ErrAborted
		}
	}

	if multi {
		p.Done++
		report(*p)
	}
	return nil
}

// idleReader pushes the idle deadline back whenever data arrives.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (r *idleReader) Read(b []byte) (int, error) {
	n, err := r.r.Read(b)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	return n, err
}

// complete advances progress to 100% and reports it.
func complete(p *Progress, report ProgressFunc) {
	if p.Total < p.Done {
		p.Total = p.Done
	}
	if p.Total == 0 {
		p.Total = 1
	}
	p.Done = p.Total
	report(*p)
}

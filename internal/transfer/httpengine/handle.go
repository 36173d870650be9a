package httpengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/haul-dl/haul/internal/transfer"
)

type handle struct {
	eng   *Engine
	url   *url.URL
	part  string
	ready string

	mu        sync.Mutex
	state     transfer.State
	written   int64
	expected  int64
	reported  int64
	cancelRun context.CancelFunc
	recovered bool
}

func (h *handle) URL() *url.URL { return h.url }

func (h *handle) Fraction() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == transfer.StateCompleted {
		return 1
	}
	if h.expected <= 0 {
		return 0
	}
	f := float64(h.written) / float64(h.expected)
	if f > 1 {
		f = 1
	}
	return f
}

func (h *handle) State() transfer.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *handle) Suspend() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != transfer.StateRunning {
		return
	}
	h.state = transfer.StateSuspended
	if h.cancelRun != nil {
		h.cancelRun()
		h.cancelRun = nil
	}
}

func (h *handle) Resume() {
	h.mu.Lock()
	if h.state != transfer.StateSuspended {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(h.eng.rootCtx)
	h.state = transfer.StateRunning
	h.cancelRun = cancel
	h.mu.Unlock()

	if !h.eng.start(func() { h.run(ctx) }) {
		h.mu.Lock()
		h.state = transfer.StateSuspended
		h.cancelRun = nil
		h.mu.Unlock()
		cancel()
	}
}

func (h *handle) Cancel() {
	h.mu.Lock()
	switch h.state {
	case transfer.StateCompleted, transfer.StateCancelling, transfer.StateFailed:
		h.mu.Unlock()
		return
	case transfer.StateRunning:
		// The worker observes the state change and finishes the
		// cancellation itself.
		h.state = transfer.StateCancelling
		if h.cancelRun != nil {
			h.cancelRun()
			h.cancelRun = nil
		}
		h.mu.Unlock()
		return
	default:
		// Suspended, no worker around to clean up.
		h.state = transfer.StateCancelling
		h.mu.Unlock()

		h.eng.start(func() { h.finishCancelled() })
	}
}

// run drives one download with retries until it reaches a terminal state or
// its context is cancelled by Suspend, Cancel or engine shutdown.
func (h *handle) run(ctx context.Context) {
	var lastErr error
	for attempt := 0; attempt <= h.eng.retries; attempt++ {
		err := h.attempt(ctx)
		if err == nil {
			h.succeed()
			return
		}
		if ctx.Err() != nil {
			h.stopped()
			return
		}

		lastErr = err
		h.eng.log.Warn("Transfer %s attempt %d/%d failed: %v", h.url, attempt+1, h.eng.retries+1, err)

		if attempt < h.eng.retries {
			select {
			case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
			case <-ctx.Done():
				h.stopped()
				return
			}
		}
	}

	h.fail(lastErr)
}

// attempt performs a single request, resuming from whatever the part file
// already holds, and finalizes the payload on success.
func (h *handle) attempt(ctx context.Context) error {
	if _, err := os.Stat(h.ready); err == nil {
		// A previous run already finalized this payload.
		return nil
	}

	file, err := os.OpenFile(h.part, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open part file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat part file: %w", err)
	}
	written := info.Size()
	h.setWritten(written)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if h.eng.userAgent != "" {
		req.Header.Set("User-Agent", h.eng.userAgent)
	}
	if written > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", written))
	}

	resp, err := h.eng.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if total := contentRangeTotal(resp.Header.Get("Content-Range")); total > 0 {
			h.setExpected(total)
		} else if resp.ContentLength > 0 {
			h.setExpected(written + resp.ContentLength)
		}
	case http.StatusOK:
		// The server ignored the range request, start over.
		if written > 0 {
			if err := file.Truncate(0); err != nil {
				return fmt.Errorf("failed to reset part file: %w", err)
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("failed to rewind part file: %w", err)
			}
			written = 0
			h.setWritten(0)
		}
		if resp.ContentLength > 0 {
			h.setExpected(resp.ContentLength)
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// The whole payload was already on disk when a previous run
		// stopped; only the finalization is left to do.
		if exp := h.expectedBytes(); exp > 0 && written == exp {
			file.Close()
			if err := os.Rename(h.part, h.ready); err != nil {
				return fmt.Errorf("failed to finalize payload: %w", err)
			}
			h.reportProgress()
			return nil
		}
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	default:
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	buf := make([]byte, 64*1024)
	if h.eng.limiter != nil && h.eng.limiter.Burst() < len(buf) {
		buf = make([]byte, h.eng.limiter.Burst())
	}
	lastEvent := time.Now()

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if h.eng.limiter != nil {
				if err := h.eng.limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if _, err := file.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write part file: %w", err)
			}
			written += int64(n)
			h.setWritten(written)

			if time.Since(lastEvent) >= h.eng.progressEvery {
				h.reportProgress()
				lastEvent = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read failed at %d bytes: %w", written, readErr)
		}
	}

	if exp := h.expectedBytes(); exp > 0 && written != exp {
		return fmt.Errorf("transfer incomplete: got %d of %d bytes", written, exp)
	}
	if h.expectedBytes() == 0 {
		h.setExpected(written)
	}
	h.reportProgress()

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close part file: %w", err)
	}
	if err := os.Rename(h.part, h.ready); err != nil {
		return fmt.Errorf("failed to finalize payload: %w", err)
	}
	return nil
}

func (h *handle) succeed() {
	h.mu.Lock()
	if h.state == transfer.StateCancelling {
		h.mu.Unlock()
		h.finishCancelled()
		return
	}
	h.state = transfer.StateCompleted
	cancel := h.cancelRun
	h.cancelRun = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	h.eng.emit(transfer.Event{Kind: transfer.EventFinished, Handle: h, Location: h.ready})
	h.eng.emit(transfer.Event{Kind: transfer.EventDone, Handle: h})
	h.eng.release(h)
}

func (h *handle) fail(cause error) {
	h.mu.Lock()
	if h.state == transfer.StateCancelling {
		h.mu.Unlock()
		h.finishCancelled()
		return
	}
	h.state = transfer.StateFailed
	cancel := h.cancelRun
	h.cancelRun = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	h.eng.emit(transfer.Event{Kind: transfer.EventDone, Handle: h, Err: cause})
	h.eng.release(h)
}

// stopped handles a run loop ended by context cancellation. Suspension and
// engine shutdown keep the part file and emit nothing; a cancelled handle
// still owes its terminal event.
func (h *handle) stopped() {
	h.mu.Lock()
	state := h.state
	h.cancelRun = nil
	h.mu.Unlock()

	if state == transfer.StateCancelling {
		h.finishCancelled()
	}
}

func (h *handle) finishCancelled() {
	os.Remove(h.part)
	h.eng.emit(transfer.Event{Kind: transfer.EventDone, Handle: h, Err: ErrCancelled})
	h.eng.release(h)
}

func (h *handle) reportProgress() {
	h.mu.Lock()
	delta := h.written - h.reported
	if delta <= 0 {
		h.mu.Unlock()
		return
	}
	h.reported = h.written
	ev := transfer.Event{
		Kind:          transfer.EventProgress,
		Handle:        h,
		Written:       delta,
		TotalWritten:  h.written,
		TotalExpected: h.expected,
	}
	h.mu.Unlock()

	h.eng.emit(ev)
}

func (h *handle) setWritten(w int64) {
	h.mu.Lock()
	h.written = w
	if h.reported > w {
		h.reported = w
	}
	h.mu.Unlock()
}

func (h *handle) setExpected(exp int64) {
	h.mu.Lock()
	changed := h.expected != exp
	h.expected = exp
	h.mu.Unlock()

	if changed {
		h.eng.noteExpected()
	}
}

func (h *handle) expectedBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expected
}

// contentRangeTotal extracts the total size from a Content-Range header,
// "bytes 100-199/1234" giving 1234. Returns 0 when the total is unknown.
func contentRangeTotal(value string) int64 {
	parts := strings.Split(value, "/")
	if len(parts) != 2 || parts[1] == "*" {
		return 0
	}
	total, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0
	}
	return total
}

// Package httpengine is a resumable net/http implementation of the transfer
// contract. Every running handle owns one goroutine that appends to a part
// file in the spool directory; an interrupted transfer continues with a
// Range request from the bytes already on disk. A sidecar file records live
// transfers so the next process can pick them up again.
package httpengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/haul-dl/haul/internal/infra/logger"
	"github.com/haul-dl/haul/internal/transfer"
)

// ErrCancelled is the terminal cause of a transfer stopped by Cancel.
var ErrCancelled = errors.New("transfer cancelled")

const sidecarName = "transfers.json"

type Config struct {
	// Dir is the spool directory for part files and the transfer sidecar.
	Dir string

	// Client defaults to a client without an overall timeout; a transfer
	// is bounded by its lifecycle, not by the clock.
	Client *http.Client

	UserAgent string

	// RateLimit caps the combined download speed in bytes per second.
	// Zero means unlimited.
	RateLimit int64

	// ProgressInterval throttles progress events per handle. Default 200ms.
	ProgressInterval time.Duration

	// Retries is how often a failed attempt is reissued before the handle
	// fails. Zero means the default of 3, negative disables retries.
	Retries int

	Log *logger.Logger
}

type Engine struct {
	dir           string
	client        *http.Client
	userAgent     string
	limiter       *rate.Limiter
	progressEvery time.Duration
	retries       int
	log           *logger.Logger

	events     chan transfer.Event
	closeCh    chan struct{}
	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	// mu is always taken before a handle's own lock.
	mu        sync.Mutex
	handles   []*handle
	recovered int
	drained   bool
	closed    bool
}

func New(cfg Config) (*Engine, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		}
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 200 * time.Millisecond
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	} else if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	e := &Engine{
		dir:           cfg.Dir,
		client:        cfg.Client,
		userAgent:     cfg.UserAgent,
		progressEvery: cfg.ProgressInterval,
		retries:       cfg.Retries,
		log:           cfg.Log,
		events:        make(chan transfer.Event, 256),
		closeCh:       make(chan struct{}),
		rootCtx:       rootCtx,
		rootCancel:    rootCancel,
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit))
	}

	e.recoverTransfers()

	return e, nil
}

// Transfer registers a suspended handle for u. The download starts when the
// caller resumes it.
func (e *Engine) Transfer(u *url.URL) transfer.Handle {
	h := e.newHandle(u)

	e.mu.Lock()
	if !e.closed {
		e.handles = append(e.handles, h)
		e.saveSidecarLocked()
	}
	e.mu.Unlock()

	return h
}

func (e *Engine) Transfers() []transfer.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]transfer.Handle, len(e.handles))
	for i, h := range e.handles {
		out[i] = h
	}
	return out
}

func (e *Engine) Events() <-chan transfer.Event {
	return e.events
}

// Close stops all running transfers but keeps their part files and the
// sidecar, so a later process can resume them.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.rootCancel()
	close(e.closeCh)
	e.wg.Wait()
	close(e.events)
}

func (e *Engine) newHandle(u *url.URL) *handle {
	sum := sha256.Sum256([]byte(u.String()))
	base := hex.EncodeToString(sum[:])

	h := &handle{
		eng:   e,
		url:   u,
		part:  filepath.Join(e.dir, base+".part"),
		ready: filepath.Join(e.dir, base+".ready"),
		state: transfer.StateSuspended,
	}
	if info, err := os.Stat(h.part); err == nil {
		h.written = info.Size()
		h.reported = info.Size()
	}
	return h
}

// recoverTransfers reloads the sidecar and restarts every transfer that was
// live when the previous process stopped. Once the last of them reaches a
// terminal state the engine emits a single Drained event.
func (e *Engine) recoverTransfers() {
	entries, err := e.loadSidecar()
	if err != nil {
		e.log.Warn("Could not read transfer sidecar: %v", err)
		return
	}

	for _, entry := range entries {
		u, err := url.Parse(entry.URL)
		if err != nil {
			e.log.Warn("Dropping unparseable recovered transfer %q: %v", entry.URL, err)
			continue
		}
		h := e.newHandle(u)
		h.recovered = true
		h.expected = entry.Expected
		e.handles = append(e.handles, h)
		e.recovered++
	}
	if e.recovered == 0 {
		return
	}

	e.log.Info("Recovered %d transfer(s) from previous run", e.recovered)
	for _, h := range e.handles {
		h.Resume()
	}
}

// start runs fn on a tracked goroutine. Returns false once the engine is
// closed.
func (e *Engine) start(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

// emit delivers ev to the consumer, dropping it when the engine closes.
func (e *Engine) emit(ev transfer.Event) {
	select {
	case e.events <- ev:
	case <-e.closeCh:
	}
}

// release drops a handle from the live set after its terminal event went out.
func (e *Engine) release(h *handle) {
	e.mu.Lock()
	for i, cur := range e.handles {
		if cur == h {
			e.handles = append(e.handles[:i], e.handles[i+1:]...)
			break
		}
	}
	e.saveSidecarLocked()

	drain := false
	if h.recovered {
		e.recovered--
		if e.recovered == 0 && !e.drained {
			e.drained = true
			drain = true
		}
	}
	e.mu.Unlock()

	if drain {
		e.emit(transfer.Event{Kind: transfer.EventDrained})
	}
}

// noteExpected persists a newly learned payload size to the sidecar.
func (e *Engine) noteExpected() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.saveSidecarLocked()
	}
}

type sidecarEntry struct {
	URL      string `json:"url"`
	Expected int64  `json:"expected,omitempty"`
}

func (e *Engine) saveSidecarLocked() {
	entries := make([]sidecarEntry, 0, len(e.handles))
	for _, h := range e.handles {
		entries = append(entries, sidecarEntry{URL: h.url.String(), Expected: h.expectedBytes()})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		e.log.Error("Could not encode transfer sidecar: %v", err)
		return
	}

	path := filepath.Join(e.dir, sidecarName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		e.log.Error("Could not write transfer sidecar: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		e.log.Error("Could not replace transfer sidecar: %v", err)
	}
}

func (e *Engine) loadSidecar() ([]sidecarEntry, error) {
	data, err := os.ReadFile(filepath.Join(e.dir, sidecarName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []sidecarEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode transfer sidecar: %w", err)
	}
	return entries, nil
}

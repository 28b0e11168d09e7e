// Package logrouter owns the rotating event log the streamer writes
// annotation markers into. It is a best-effort collaborator: callers treat
// every operation as fire-and-forget and must never let a router failure
// stall the telemetry loop.
package logrouter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Router appends annotated events to the current log session and rotates
// sessions on demand. Files are named <name>.<index>.log inside dir.
type Router struct {
	mu    sync.Mutex
	dir   string
	name  string
	index int
	file  *os.File
}

// New creates a router writing under dir with the given base name. The first
// session is opened lazily on the first append or explicitly via Rotate.
func New(dir, name string) *Router {
	return &Router{dir: dir, name: name}
}

// Rotate closes the current session file and opens the next one, returning
// the new session's file name.
func (r *Router) Rotate() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	r.index++
	return r.openLocked()
}

// AppendEvent writes one event line to the current session, opening the
// first session if none exists yet. ts is the server-assigned ingestion
// timestamp in device milliseconds; t is the client's own event time.
func (r *Router) AppendEvent(ts uint32, kind, note string, t uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		if _, err := r.openLocked(); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(r.file, "%d %s %d %s\n", ts, kind, t, note)
	return err
}

// Index returns the current rotation index.
func (r *Router) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Close releases the current session file.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *Router) openLocked() (string, error) {
	name := fmt.Sprintf("%s.%d.log", r.name, r.index)
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("log router: open session %s: %w", name, err)
	}
	r.file = f
	return name, nil
}

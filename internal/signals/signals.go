// Package signals lets one shipline process wake another that is waiting on
// a manual gate. approve and reject drop a file under
// .shipline/signals/<feature>/<gate>; a waiting run watches for it.
package signals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is how often Wait re-checks when file events are
// unavailable or missed.
const DefaultPollInterval = 2 * time.Second

// Dir returns the signals directory of a project.
func Dir(repoPath string) string {
	return filepath.Join(repoPath, ".shipline", "signals")
}

// Path returns the signal file for a feature's gate.
func Path(repoPath, featureID, gate string) string {
	return filepath.Join(Dir(repoPath), featureID, gate)
}

// Send records that gate was resolved. The content is informational.
func Send(repoPath, featureID, gate, decision string) error {
	path := Path(repoPath, featureID, gate)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	content := fmt.Sprintf("%s %s\n", decision, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}
	return nil
}

// Watcher waits for gate signals.
type Watcher struct {
	repoPath string
	poll     time.Duration
}

// NewWatcher creates a watcher for a project.
func NewWatcher(repoPath string) *Watcher {
	return &Watcher{repoPath: repoPath, poll: DefaultPollInterval}
}

// SetPollInterval overrides the polling fallback interval.
func (w *Watcher) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.poll = d
	}
}

// Wait blocks until a signal for the gate exists, consumes it and returns.
// It watches the feature's signal directory with fsnotify and also polls, so
// a missed or unsupported event only delays the wakeup.
func (w *Watcher) Wait(ctx context.Context, featureID, gate string) error {
	path := Path(w.repoPath, featureID, gate)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw, err := fsnotify.NewWatcher(); err == nil {
		defer fw.Close()
		if err := fw.Add(dir); err == nil {
			events, errs = fw.Events, fw.Errors
		}
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	return waitFor(ctx, path, events, errs, ticker.C)
}

// waitFor loops until path can be consumed. Watcher errors are drained and
// dropped; the ticker still catches the signal.
func waitFor(ctx context.Context, path string, events <-chan fsnotify.Event, errs <-chan error, tick <-chan time.Time) error {
	for {
		if consume(path) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Name != path || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-tick:
		}
	}
}

// consume removes the signal file, reporting whether it existed.
func consume(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return os.Remove(path) == nil
}

package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestWait_WakesOnSend(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir)
	w.SetPollInterval(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Wait(ctx, "upload", "preview") }()

	time.Sleep(100 * time.Millisecond)
	if err := Send(dir, "upload", "preview", "approved by alice"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Wait did not return after Send")
	}

	if _, err := os.Stat(Path(dir, "upload", "preview")); !os.IsNotExist(err) {
		t.Error("signal was not consumed")
	}
}

func TestWait_ExistingSignal(t *testing.T) {
	dir := t.TempDir()
	if err := Send(dir, "upload", "preview", "rejected by bob"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := NewWatcher(dir).Wait(ctx, "upload", "preview"); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestWait_IgnoresOtherGates(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir)
	w.SetPollInterval(20 * time.Millisecond)
	if err := Send(dir, "upload", "validate-staging", "approved"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx, "upload", "preview"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want deadline exceeded", err)
	}
}

func TestWaitFor_DrainsWatcherErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview")
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	tick := make(chan time.Time)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- waitFor(ctx, path, events, errs, tick) }()

	// Unbuffered sends only complete if the loop keeps reading errors.
	for i := 0; i < 3; i++ {
		select {
		case errs <- errors.New("queue overflow"):
		case <-time.After(2 * time.Second):
			t.Fatalf("error %d not drained", i)
		}
	}
	close(errs)

	if err := os.WriteFile(path, []byte("approved"), 0644); err != nil {
		t.Fatal(err)
	}
	tick <- time.Now()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waitFor: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waitFor did not return after the signal appeared")
	}
}

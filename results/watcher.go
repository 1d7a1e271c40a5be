package results

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/knowledge-bank/kb-cloud/logger"
)

// Publisher receives a Result each time a new envelope lands.
type Publisher interface {
	PublishResult(res *Result)
}

// DefaultDebounce batches the burst of events a single file write produces.
const DefaultDebounce = 250 * time.Millisecond

// Watcher keeps the latest Result cached and refreshes it when the results
// directory changes.
type Watcher struct {
	reader   *Reader
	pub      Publisher
	log      *logger.Logger
	debounce time.Duration

	mu      sync.RWMutex
	latest  *Result
	err     error
	running bool
}

// NewWatcher builds a watcher over reader. pub may be nil.
func NewWatcher(reader *Reader, pub Publisher, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Watcher{
		reader:   reader,
		pub:      pub,
		log:      log.WithField("component", "results-watcher"),
		debounce: DefaultDebounce,
	}
}

// SetDebounce overrides DefaultDebounce. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Running reports whether Run is currently watching the directory.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Latest returns the cached scan result.
func (w *Watcher) Latest() (*Result, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest, w.err
}

// Run watches the directory until ctx is cancelled. It returns an error only
// if the watch could not be established.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("results watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.reader.Dir); err != nil {
		return fmt.Errorf("results watcher: watch %s: %w", w.reader.Dir, err)
	}

	w.refresh(false)
	w.setRunning(true)
	defer w.setRunning(false)
	w.log.Infof("watching %s", w.reader.Dir)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.log.Debugf("%s %s", ev.Op, ev.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch error", err)

		case <-timerC:
			timerC = nil
			w.refresh(true)
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !IsResultFile(filepath.Base(ev.Name)) {
		return false
	}
	return ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) ||
		ev.Op.Has(fsnotify.Rename) || ev.Op.Has(fsnotify.Remove)
}

func (w *Watcher) setRunning(v bool) {
	w.mu.Lock()
	w.running = v
	w.mu.Unlock()
}

func (w *Watcher) refresh(publish bool) {
	res, err := w.reader.Latest()

	w.mu.Lock()
	prev := w.latest
	w.latest, w.err = res, err
	w.mu.Unlock()

	if err != nil {
		// Half-written files fail to parse; the next write event retries.
		w.log.Warnf("refresh %s: %v", w.reader.Dir, err)
		return
	}
	if !publish || w.pub == nil || res.Status != StatusOK {
		return
	}
	if prev != nil && prev.Status == StatusOK && prev.FullPath == res.FullPath && prev.ModTime.Equal(res.ModTime) {
		return
	}
	w.log.WithFields(map[string]interface{}{
		"file":   res.File,
		"job_id": res.Envelope.JobID,
	}).Info("new result envelope")
	w.pub.PublishResult(res)
}

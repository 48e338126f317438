// Package signals lets an operator steer a running swarm through files in
// .swarmer/signals, and carries advisory messages to agents through
// .swarmer/agents.
//
//	stop              request a graceful stop
//	drift-<agentID>   mark an agent as drifting (forces a fresh start)
//	wakeup-<agentID>  queue a planner wake-up for an agent
//
// drift and wakeup files are consumed when seen; stop stays until cleared.
package signals

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind is the type of operator signal.
type Kind string

const (
	KindStop   Kind = "stop"
	KindDrift  Kind = "drift"
	KindWakeup Kind = "wakeup"
)

// Signal is one operator request.
type Signal struct {
	Kind    Kind
	AgentID string
}

const stopFile = "stop"

// Watcher watches the signals directory.
type Watcher struct {
	dir string

	mu      sync.RWMutex
	stopped bool

	out     chan Signal
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New creates the state directories under stateDir and starts watching.
// Without fsnotify the watcher still answers StopRequested by polling.
func New(stateDir string) (*Watcher, error) {
	for _, dir := range []string{
		filepath.Join(stateDir, "signals"),
		filepath.Join(stateDir, "agents"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	w := &Watcher{
		dir:  stateDir,
		out:  make(chan Signal, 64),
		done: make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[signals] warning: file watching unavailable, polling only: %v", err)
		return w, nil
	}
	if err := watcher.Add(w.signalsDir()); err != nil {
		watcher.Close()
		log.Printf("[signals] warning: cannot watch %s: %v", w.signalsDir(), err)
		return w, nil
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.watch()
	w.scanExisting()
	return w, nil
}

func (w *Watcher) signalsDir() string {
	return filepath.Join(w.dir, "signals")
}

// Signals delivers parsed signals. It is closed by Close.
func (w *Watcher) Signals() <-chan Signal {
	return w.out
}

func (w *Watcher) watch() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handle(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[signals] watch error: %v", err)
		}
	}
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.signalsDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.handle(filepath.Join(w.signalsDir(), e.Name()))
		}
	}
}

// parse maps a signal file name to a Signal.
func parse(name string) (Signal, bool) {
	if name == stopFile {
		return Signal{Kind: KindStop}, true
	}
	for _, kind := range []Kind{KindDrift, KindWakeup} {
		prefix := string(kind) + "-"
		if id := strings.TrimPrefix(name, prefix); id != name && id != "" {
			return Signal{Kind: kind, AgentID: id}, true
		}
	}
	return Signal{}, false
}

func (w *Watcher) handle(path string) {
	sig, ok := parse(filepath.Base(path))
	if !ok {
		return
	}
	if sig.Kind == KindStop {
		if _, err := os.Stat(path); err != nil {
			return
		}
		w.mu.Lock()
		already := w.stopped
		w.stopped = true
		w.mu.Unlock()
		if already {
			return
		}
	} else if err := os.Remove(path); err != nil {
		// Another event for the same file already consumed it.
		return
	}
	select {
	case w.out <- sig:
	case <-w.done:
	default:
		log.Printf("[signals] dropping %s signal for %q: channel full", sig.Kind, sig.AgentID)
	}
}

// StopRequested reports whether a stop file exists or was seen.
func (w *Watcher) StopRequested() bool {
	if _, err := os.Stat(filepath.Join(w.signalsDir(), stopFile)); err == nil {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

// SendStop writes the stop file.
func (w *Watcher) SendStop() error {
	return w.write(stopFile)
}

// SendDrift writes a drift signal for agentID.
func (w *Watcher) SendDrift(agentID string) error {
	return w.write(string(KindDrift) + "-" + agentID)
}

// SendWakeup writes a wake-up signal for agentID.
func (w *Watcher) SendWakeup(agentID string) error {
	return w.write(string(KindWakeup) + "-" + agentID)
}

func (w *Watcher) write(name string) error {
	path := filepath.Join(w.signalsDir(), name)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files and resets the stop flag.
func (w *Watcher) ClearSignals() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = false
	entries, _ := os.ReadDir(w.signalsDir())
	for _, e := range entries {
		os.Remove(filepath.Join(w.signalsDir(), e.Name()))
	}
}

// WriteAgentMessage appends an advisory message for agentID.
func (w *Watcher) WriteAgentMessage(agentID, message string) error {
	path := filepath.Join(w.dir, "agents", agentID+".md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString("- " + time.Now().Format("2006-01-02 15:04") + ": " + message + "\n")
	return err
}

// ReadAgentMessage returns pending messages for agentID.
func (w *Watcher) ReadAgentMessage(agentID string) string {
	content, _ := os.ReadFile(filepath.Join(w.dir, "agents", agentID+".md"))
	return string(content)
}

// TakeAgentMessage returns and clears pending messages for agentID.
func (w *Watcher) TakeAgentMessage(agentID string) string {
	msg := w.ReadAgentMessage(agentID)
	if msg != "" {
		os.Remove(filepath.Join(w.dir, "agents", agentID+".md"))
	}
	return msg
}

// Close stops watching and closes the Signals channel.
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.wg.Wait()
		close(w.out)
	})
}

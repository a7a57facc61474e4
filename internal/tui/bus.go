package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// bus carries controller notifications into the program. Controllers call
// emit from their own goroutines; listen is the only reader.
type bus struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

func newBus() *bus {
	return &bus{events: make(chan tea.Msg, 64), done: make(chan struct{})}
}

func (b *bus) emit(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// listen waits for the next notification. Update re-arms it after each one.
func (b *bus) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

func (b *bus) close() {
	b.once.Do(func() { close(b.done) })
}

// watcher collects subscription cancel funcs so they can be dropped together.
type watcher struct {
	mu      sync.Mutex
	cancels []func()
	stopped bool
}

func (w *watcher) add(cancel func()) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		cancel()
		return
	}
	w.cancels = append(w.cancels, cancel)
	w.mu.Unlock()
}

func (w *watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	cancels := w.cancels
	w.cancels = nil
	w.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

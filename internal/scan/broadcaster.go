package scan

import (
	"sync"

	"github.com/kozaktomas/face-scan/internal/constants"
	"github.com/kozaktomas/face-scan/internal/database"
)

// Event types sent to subscribers.
const (
	EventState   = "state"
	EventHistory = "history"
)

// Event is a change notification sent to subscribers.
type Event struct {
	Type    string                `json:"type"`
	State   *State                `json:"state,omitempty"`
	History []database.ScanResult `json:"history,omitempty"`
}

// broadcaster fans events out to listeners. Sends never block: a listener
// whose buffer is full misses the event.
type broadcaster struct {
	listeners []chan Event
	closed    bool
	mu        sync.RWMutex
}

func (b *broadcaster) addListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.listeners = append(b.listeners, ch)
	return ch
}

func (b *broadcaster) removeListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *broadcaster) send(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// close closes every listener channel; later listeners receive a closed channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, listener := range b.listeners {
		close(listener)
	}
	b.listeners = nil
}

package terminal

import (
	"sync"
)

// Listener receives the events of one session. Returning an error removes
// the listener from its broadcaster.
type Listener func(Event) error

// ListenerID identifies a registration. The zero value is never issued.
type ListenerID uint64

// Broadcaster fans events out to registered listeners.
//
// Publish calls listeners in registration order. A listener that fails is
// unregistered and the remaining listeners still receive the event, so one
// dead viewer never disturbs the others. Listeners must not block: they
// are called on the publisher's goroutine.
type Broadcaster struct {
	mu        sync.Mutex
	next      ListenerID
	order     []ListenerID
	listeners map[ListenerID]Listener

	// onDrop is told about listeners removed for a failed delivery.
	onDrop func(ListenerID, error)
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[ListenerID]Listener)}
}

// SetOnDrop installs fn to be called after a failing listener is removed.
func (b *Broadcaster) SetOnDrop(fn func(ListenerID, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Register adds a listener and returns its id.
func (b *Broadcaster) Register(l Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.listeners[b.next] = l
	b.order = append(b.order, b.next)
	return b.next
}

// Unregister removes a listener. Unknown ids are ignored.
func (b *Broadcaster) Unregister(id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(id)
}

func (b *Broadcaster) remove(id ListenerID) bool {
	if _, ok := b.listeners[id]; !ok {
		return false
	}
	delete(b.listeners, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Publish delivers ev to every listener and returns how many received it.
func (b *Broadcaster) Publish(ev Event) int {
	b.mu.Lock()
	ids := append([]ListenerID(nil), b.order...)
	fns := make([]Listener, len(ids))
	for i, id := range ids {
		fns[i] = b.listeners[id]
	}
	b.mu.Unlock()

	delivered := 0
	for i, fn := range fns {
		if err := fn(ev); err != nil {
			b.mu.Lock()
			removed := b.remove(ids[i])
			onDrop := b.onDrop
			b.mu.Unlock()
			if removed && onDrop != nil {
				onDrop(ids[i], err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Clear removes every listener.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = nil
	b.listeners = make(map[ListenerID]Listener)
}

// Len returns the number of registered listeners.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

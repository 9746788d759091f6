package rpcclient

import (
	"container/list"
	"sync"
	"time"
)

// registry is the sequence-indexed lookup plus expiration-ordered list of
// in-flight messages.
//
// Because every message is assigned an expiration of "now + a constant"
// at registration time, and registration time is monotonically
// non-decreasing, insertion order and deadline order coincide: the list
// never needs re-sorting, and the head is always the next message to
// expire.
type registry struct {
	mu      sync.Mutex
	index   map[uint32]*list.Element
	order   *list.List // list.Element.Value is *message
	timeout time.Duration
	timer   *time.Timer
}

func newRegistry(requestTimeout time.Duration) *registry {
	r := &registry{
		index:   make(map[uint32]*list.Element),
		order:   list.New(),
		timeout: requestTimeout,
		timer:   time.NewTimer(time.Hour),
	}
	r.timer.Stop()
	return r
}

// register stamps msg's expiration and inserts it into both indexes,
// rearming the timer to the (possibly new) head of the list.
func (r *registry) register(msg *message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg.expiration = time.Now().Add(r.timeout)
	elem := r.order.PushBack(msg)
	r.index[msg.seq] = elem
	r.rearmLocked()
}

// claim removes the message with the given sequence number from both
// indexes, if present, conferring exclusive ownership of its completion
// signal on the caller.
func (r *registry) claim(seq uint32) (*message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.index[seq]
	if !ok {
		return nil, false
	}
	delete(r.index, seq)
	r.order.Remove(elem)
	r.rearmLocked()
	return elem.Value.(*message), true
}

// drainExpired removes and returns every message whose expiration is at or
// before now, walking from the head and stopping at the first message that
// has not yet expired (the registry's deadline-sorted invariant makes this a
// bounded walk, never a full scan).
func (r *registry) drainExpired(now time.Time) []*message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*message
	for {
		front := r.order.Front()
		if front == nil {
			break
		}
		msg := front.Value.(*message)
		if msg.expiration.After(now) {
			break
		}
		r.order.Remove(front)
		delete(r.index, msg.seq)
		expired = append(expired, msg)
	}
	r.rearmLocked()
	return expired
}

// drainAll removes and returns every registered message, used only during
// shutdown.
func (r *registry) drainAll() []*message {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*message, 0, len(r.index))
	for front := r.order.Front(); front != nil; front = r.order.Front() {
		all = append(all, front.Value.(*message))
		r.order.Remove(front)
	}
	r.index = make(map[uint32]*list.Element)
	r.rearmLocked()
	return all
}

// rearmLocked resets the shared timer to the current head's deadline, or
// disarms it if the registry is empty. Must be called with r.mu held.
func (r *registry) rearmLocked() {
	if !r.timer.Stop() {
		select {
		case <-r.timer.C:
		default:
		}
	}

	front := r.order.Front()
	if front == nil {
		return // disarmed
	}
	d := time.Until(front.Value.(*message).expiration)
	if d < 0 {
		d = 0
	}
	r.timer.Reset(d)
}

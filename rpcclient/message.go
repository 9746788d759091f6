package rpcclient

import (
	"sync"
	"time"
)

// outcome is how an in-flight request finished, independent of the wire
// protocol.Kind: a remote KindError frame gets its own sentinel since it
// names a problem with this specific request, but a local timeout and a
// disconnection discovered while the request was still pending collapse
// into the same outcome — the caller has no way to tell "no answer in time"
// from "the peer vanished mid-flight" apart, so both surface identically.
type outcome int

const (
	outcomeNone outcome = iota
	outcomeOK
	outcomeRemoteError
	outcomeTimeout
)

// message is the in-flight record for one outstanding ReadAt/WriteAt call.
//
// Its completion channel (done) is closed exactly once by whichever of the
// reader goroutine (on a matching response), the timeout goroutine (on
// expiration), or the connection (on shutdown) finishes the request first.
//
// mu guards the fields the reader/timeout goroutines mutate while delivering
// an outcome (outcome, buffer contents, reason); it is held only for the
// duration of that mutation, never across the done channel being closed, and
// nothing ever blocks trying to acquire it.
type message struct {
	seq    uint32
	offset uint64
	buffer []byte

	expiration time.Time

	mu      sync.Mutex
	outcome outcome
	reason  string

	done chan struct{}
}

func newMessage(seq uint32, offset uint64, buffer []byte) *message {
	return &message{
		seq:    seq,
		offset: offset,
		buffer: buffer,
		done:   make(chan struct{}),
	}
}

// complete records how the request finished and wakes the waiter. Must be
// called at most once.
func (m *message) complete(o outcome, reason string) {
	m.mu.Lock()
	m.outcome = o
	m.reason = reason
	m.mu.Unlock()
	close(m.done)
}

// result returns the recorded outcome and, for failures, the reason. Safe to
// call only after done has been closed.
func (m *message) result() (outcome, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome, m.reason
}

// Package rpcclient implements an asynchronous request/response client:
// callers issue blocking ReadAt/WriteAt calls against a remote storage
// endpoint reached over a Unix domain stream socket, and the client
// multiplexes many such outstanding requests over a single connection by
// tagging each with a sequence number.
//
// Lock sequence:
//  1. registry.mu    (protects the registry + shared timer)
//  2. message.mu     (per in-flight request)
//  3. Connection.mu  (protects state + the underlying net.Conn)
//
// Every code path needing more than one of these acquires them in that
// order. The reader and timeout goroutines never send frames; they only
// manipulate the registry and signal waiters.
package rpcclient

import (
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/shuo-wu/tgt/protocol"
)

type connState int

const (
	stateOpen connState = iota
	stateClosed
)

// Connection is an open, multiplexing client connection to a remote storage
// endpoint. Create one with Dial; tear it down with Shutdown.
type Connection struct {
	conn      net.Conn
	transport *transport
	registry  *registry
	cfg       Config
	stats     stats

	mu    sync.Mutex
	state connState

	seqCounter atomic.Uint32

	closed      chan struct{}
	closeOnce   sync.Once
	readerDone  chan struct{}
	timeoutDone chan struct{}
}

// Dial opens a connection to the storage endpoint at cfg.SocketPath,
// retrying up to cfg.RetryCount times with cfg.RetryInterval between
// attempts. On persistent failure it returns a wrapped ErrConnectFailed.
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	if err := protocol.ValidateSocketPath(cfg.SocketPath); err != nil {
		return nil, errors.Wrap(ErrSocketPathTooLong, err.Error())
	}

	var (
		conn net.Conn
		err  error
	)
	for attempt := 1; attempt <= cfg.RetryCount; attempt++ {
		conn, err = net.Dial("unix", cfg.SocketPath)
		if err == nil {
			break
		}
		log.Printf("rpcclient: connect attempt %d/%d failed: %v", attempt, cfg.RetryCount, err)

		if attempt == cfg.RetryCount {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}
	if err != nil {
		return nil, errors.Wrap(ErrConnectFailed, err.Error())
	}

	c := &Connection{
		conn:        conn,
		transport:   newTransport(conn),
		registry:    newRegistry(cfg.RequestTimeout),
		cfg:         cfg,
		state:       stateOpen,
		closed:      make(chan struct{}),
		readerDone:  make(chan struct{}),
		timeoutDone: make(chan struct{}),
	}

	go c.readerLoop()
	go c.timeoutLoop()
	go c.watchStatsSignal()

	return c, nil
}

// ReadAt issues a blocking read of len(buf) bytes at offset, populating buf
// on success.
func (c *Connection) ReadAt(buf []byte, offset uint64) error {
	err := c.processRequest(protocol.KindRead, buf, offset)
	if err == nil {
		c.stats.recordRead()
	}
	return err
}

// WriteAt issues a blocking write of buf at offset.
func (c *Connection) WriteAt(buf []byte, offset uint64) error {
	err := c.processRequest(protocol.KindWrite, buf, offset)
	if err == nil {
		c.stats.recordWrite()
		c.stats.recordBytesOut(uint64(len(buf)))
	}
	return err
}

// processRequest registers a message, sends its frame, and blocks until the
// reader or timeout goroutine completes it. buf is owned by the caller for
// the entire call.
func (c *Connection) processRequest(kind protocol.Kind, buf []byte, offset uint64) error {
	if kind != protocol.KindRead && kind != protocol.KindWrite {
		return ErrInvalidArgument
	}

	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.mu.Unlock()

	seq := c.seqCounter.Add(1) - 1

	if kind == protocol.KindRead {
		for i := range buf {
			buf[i] = 0
		}
	}

	msg := newMessage(seq, offset, buf)
	c.registry.register(msg)

	if err := c.transport.send(kind, seq, offset, uint32(len(buf)), sendPayload(kind, buf)); err != nil {
		// Claim-and-remove before returning, so a late response or a
		// timeout firing after we walk away can never double-signal
		// this message. A failed send is fatal to the connection.
		c.registry.claim(seq)
		c.beginShutdown()
		return errors.WithStack(err)
	}

	<-msg.done

	switch o, reason := msg.result(); o {
	case outcomeOK:
		return nil
	case outcomeRemoteError:
		return errors.Wrap(ErrRemote, reason)
	case outcomeTimeout:
		return errors.Wrap(ErrTimeout, reason)
	default:
		return errors.Errorf("rpcclient: message seq=%d completed with unexpected outcome %d", seq, o)
	}
}

// sendPayload returns the bytes that should accompany the frame: a write
// carries its buffer, a read carries no payload.
func sendPayload(kind protocol.Kind, buf []byte) []byte {
	if kind == protocol.KindWrite {
		return buf
	}
	return nil
}

// initiateShutdown is the reader's own path into teardown on a receive error
// or EOF. It must never wait on c.readerDone: it runs ON the reader
// goroutine, before that goroutine's deferred close of readerDone has
// fired, so waiting on it here would deadlock the reader against itself.
func (c *Connection) initiateShutdown() {
	c.beginShutdown()
	<-c.timeoutDone
}

// Shutdown idempotently tears the connection down: it stops accepting new
// requests, closes the timer and the socket (unblocking the reader and
// timeout goroutines), fails every still-registered message, and waits for
// both background goroutines to exit before returning. Safe to call more
// than once, and safe to call concurrently with the reader discovering the
// same disconnection on its own.
func (c *Connection) Shutdown() error {
	err := c.beginShutdown()
	<-c.readerDone
	<-c.timeoutDone
	return err
}

// beginShutdown performs the state transition, socket close, timer stop, and
// message draining exactly once, however many goroutines race to call it.
// Callers other than the one that wins the race get a nil error back; the
// close error (if any) is only meaningful to whichever caller actually
// performed the teardown.
func (c *Connection) beginShutdown() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	c.mu.Unlock()

	log.Printf("rpcclient: shutting down connection")

	c.closeOnce.Do(func() { close(c.closed) })
	c.registry.timer.Stop()
	err := c.conn.Close()

	for _, msg := range c.registry.drainAll() {
		log.Printf("rpcclient: cancelling request seq=%d due to shutdown", msg.seq)
		msg.complete(outcomeTimeout, "connection closed")
	}

	if err != nil {
		return errors.Wrap(ErrTransport, err.Error())
	}
	return nil
}

package rpcclient

import (
	"log"

	"github.com/shuo-wu/tgt/protocol"
)

// readerLoop is the single long-lived consumer of the connection's receive
// side.
func (c *Connection) readerLoop() {
	defer close(c.readerDone)

	for {
		frame, err := c.transport.receive()
		if err != nil {
			log.Printf("rpcclient: receive failed, shutting down: %v", err)
			c.initiateShutdown()
			return
		}

		switch frame.Kind {
		case protocol.KindEOF:
			log.Printf("rpcclient: received EOF, shutting down")
			c.initiateShutdown()
			return
		case protocol.KindRead, protocol.KindWrite:
			log.Printf("rpcclient: protocol violation: request kind %v on inbound frame seq=%d, discarding", frame.Kind, frame.Seq)
			continue
		case protocol.KindError, protocol.KindResponse:
			c.deliver(frame)
		default:
			log.Printf("rpcclient: unknown frame kind %d seq=%d, discarding", frame.Kind, frame.Seq)
		}
	}
}

// deliver claims the message matching frame.Seq and hands it its outcome. A
// frame whose sequence is no longer registered is a normal, non-fatal event
// (the request already timed out or the connection is shutting down) and is
// silently dropped.
func (c *Connection) deliver(frame protocol.Message) {
	msg, ok := c.registry.claim(frame.Seq)
	if !ok {
		log.Printf("rpcclient: unknown response sequence %d, discarding", frame.Seq)
		return
	}

	c.stats.recordBytesIn(uint64(len(frame.Data)))

	switch frame.Kind {
	case protocol.KindError:
		c.stats.recordRemoteError()
		msg.complete(outcomeRemoteError, string(frame.Data))
	default: // KindResponse
		// Only the first len(frame.Data) bytes are written: a short
		// response to a read leaves the rest as processRequest zeroed it
		// before sending.
		msg.mu.Lock()
		copy(msg.buffer, frame.Data)
		msg.mu.Unlock()
		msg.complete(outcomeOK, "")
	}
}

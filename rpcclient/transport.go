package rpcclient

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/shuo-wu/tgt/protocol"
)

// transport owns the stream channel and a serialising send lock, exposing
// framed send/receive built on protocol.Encode/protocol.Decode.
//
// The send lock is held for the duration of exactly one frame; receive needs
// no lock because a single goroutine (the reader) ever calls it.
type transport struct {
	rw   io.ReadWriter
	sendMu sync.Mutex
}

func newTransport(rw io.ReadWriter) *transport {
	return &transport{rw: rw}
}

// send emits one frame built from msg. length is the requested size for a
// KindRead frame (which carries no payload of its own); for every other kind
// it is ignored in favor of len(data). Any failure is fatal to the
// connection; the caller is expected to trigger a shutdown.
func (t *transport) send(kind protocol.Kind, seq uint32, offset uint64, length uint32, data []byte) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	frame := protocol.Message{
		Kind:   kind,
		Seq:    seq,
		Offset: offset,
		Length: length,
		Data:   data,
	}
	if err := protocol.Encode(t.rw, &frame); err != nil {
		return errors.Wrap(ErrTransport, err.Error())
	}
	return nil
}

// receive blocks for one complete inbound frame. Only the reader goroutine
// ever calls this.
func (t *transport) receive() (protocol.Message, error) {
	var frame protocol.Message
	if err := protocol.Decode(t.rw, &frame); err != nil {
		return protocol.Message{}, errors.Wrap(ErrTransport, err.Error())
	}
	return frame, nil
}

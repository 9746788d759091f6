// Package protocol implements the wire framing for the block-RPC client:
// fixed-header, length-prefixed frames exchanged over a reliable byte stream
// (a Unix domain socket).
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Kind identifies the purpose of a frame.
type Kind uint8

const (
	KindRead Kind = iota
	KindWrite
	KindResponse
	KindError
	KindEOF
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "Read"
	case KindWrite:
		return "Write"
	case KindResponse:
		return "Response"
	case KindError:
		return "Error"
	case KindEOF:
		return "EOF"
	default:
		return "Unknown"
	}
}

// maxPayload bounds a single frame's payload to guard against a corrupt or
// malicious length field forcing an unbounded allocation in Decode.
const maxPayload = 64 << 20 // 64MiB

// headerSize is the on-wire size of a frame header:
// 1 (kind) + 4 (seq) + 8 (offset) + 4 (length) bytes.
const headerSize = 1 + 4 + 8 + 4

// Message is the wire-level representation of one frame. Callers only ever
// originate KindRead/KindWrite; KindResponse/KindError/KindEOF only appear on
// frames received from the peer.
//
// Length means different things for different kinds: on a KindRead request
// it is the number of bytes requested (no payload follows the header at
// all); on every other kind that carries bytes it is simply len(Data), and
// Encode/Decode keep the two in sync automatically.
type Message struct {
	Kind   Kind
	Seq    uint32
	Offset uint64
	Length uint32
	Data   []byte
}

// hasWirePayload reports whether frames of this kind are followed by Length
// bytes of payload on the wire. A KindRead frame carries no payload; its
// Length names how many bytes the peer should send back in the matching
// KindResponse.
func hasWirePayload(k Kind) bool {
	switch k {
	case KindWrite, KindResponse, KindError:
		return true
	default:
		return false
	}
}

// Encode writes msg to w as one complete frame. A partial write is reported
// as an error; callers must treat this as fatal to the connection.
func Encode(w io.Writer, msg *Message) error {
	var hdr [headerSize]byte
	hdr[0] = byte(msg.Kind)
	binary.LittleEndian.PutUint32(hdr[1:5], msg.Seq)
	binary.LittleEndian.PutUint64(hdr[5:13], msg.Offset)

	length := msg.Length
	if hasWirePayload(msg.Kind) {
		length = uint32(len(msg.Data))
	}
	binary.LittleEndian.PutUint32(hdr[13:17], length)

	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if hasWirePayload(msg.Kind) && len(msg.Data) > 0 {
		if _, err := w.Write(msg.Data); err != nil {
			return errors.Wrap(err, "write frame payload")
		}
	}
	return nil
}

// Decode reads one complete frame from r into msg. Payload storage is
// allocated here; ownership transfers to the caller of Decode.
func Decode(r io.Reader, msg *Message) error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return errors.Wrap(err, "read frame header")
	}

	msg.Kind = Kind(hdr[0])
	msg.Seq = binary.LittleEndian.Uint32(hdr[1:5])
	msg.Offset = binary.LittleEndian.Uint64(hdr[5:13])
	msg.Length = binary.LittleEndian.Uint32(hdr[13:17])

	if msg.Length > maxPayload {
		return errors.Errorf("frame payload too large: %d bytes", msg.Length)
	}

	if !hasWirePayload(msg.Kind) || msg.Length == 0 {
		msg.Data = nil
		return nil
	}

	msg.Data = make([]byte, msg.Length)
	if _, err := io.ReadFull(r, msg.Data); err != nil {
		return errors.Wrap(err, "read frame payload")
	}
	return nil
}

// maxSocketPathLen is one less than sizeof(sockaddr_un.sun_path) (108),
// leaving room for the terminating NUL byte.
const maxSocketPathLen = 107

// ValidateSocketPath rejects socket paths that would overflow sockaddr_un,
// rather than silently truncating them.
func ValidateSocketPath(path string) error {
	if len(path) > maxSocketPathLen {
		return errors.Errorf("socket path %q is too long: %d bytes (max %d)", path, len(path), maxSocketPathLen)
	}
	return nil
}

package rpcclient

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/shuo-wu/tgt/protocol"
)

// listenUnix starts a Unix listener at a fresh path under t.TempDir and
// returns it; the caller owns Accept.
func listenUnix(t *testing.T) (*net.UnixListener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tgt-rpc.sock")
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		t.Fatalf("ResolveUnixAddr: %v", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		t.Fatalf("ListenUnix: %v", err)
	}
	return ln, path
}

func dialTest(t *testing.T, socketPath string, configure func(*Config)) *Connection {
	t.Helper()
	cfg := DefaultConfig(socketPath)
	cfg.RetryCount = 3
	cfg.RetryInterval = 10 * time.Millisecond
	cfg.RequestTimeout = time.Second
	if configure != nil {
		configure(&cfg)
	}
	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestReadWriteRoundTrip(t *testing.T) {
	ln, path := listenUnix(t)
	defer ln.Close()

	store := make([]byte, 4096)
	go func() {
		peer, err := ln.Accept()
		if err != nil {
			return
		}
		defer peer.Close()
		for {
			var req protocol.Message
			if err := protocol.Decode(peer, &req); err != nil {
				return
			}
			resp := protocol.Message{Seq: req.Seq}
			switch req.Kind {
			case protocol.KindWrite:
				copy(store[req.Offset:], req.Data)
				resp.Kind = protocol.KindResponse
			case protocol.KindRead:
				resp.Kind = protocol.KindResponse
				resp.Data = append([]byte(nil), store[req.Offset:req.Offset+uint64(req.Length)]...)
			}
			if err := protocol.Encode(peer, &resp); err != nil {
				return
			}
		}
	}()

	conn := dialTest(t, path, nil)
	defer conn.Shutdown()

	payload := []byte("hello, storage endpoint")
	if err := conn.WriteAt(payload, 100); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	buf := make([]byte, len(payload))
	if err := conn.ReadAt(buf, 100); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != string(payload) {
		t.Fatalf("read back %q, want %q", buf, payload)
	}

	stats := conn.Stats()
	if stats.Reads != 1 || stats.Writes != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutOfOrderResponses(t *testing.T) {
	ln, path := listenUnix(t)
	defer ln.Close()

	go func() {
		peer, err := ln.Accept()
		if err != nil {
			return
		}
		defer peer.Close()

		var reqs []protocol.Message
		for len(reqs) < 2 {
			var req protocol.Message
			if err := protocol.Decode(peer, &req); err != nil {
				return
			}
			reqs = append(reqs, req)
		}

		// Answer the second request first. Each response's payload echoes
		// the offset from its own request (not the arrival order), so a
		// correct client proves it matched the response to the right
		// waiter by sequence number, not by answer order.
		for _, i := range []int{1, 0} {
			req := reqs[i]
			resp := protocol.Message{
				Seq:  req.Seq,
				Kind: protocol.KindResponse,
				Data: []byte{byte(req.Offset)},
			}
			if err := protocol.Encode(peer, &resp); err != nil {
				return
			}
		}
	}()

	conn := dialTest(t, path, nil)
	defer conn.Shutdown()

	results := make(chan struct {
		idx int
		buf []byte
		err error
	}, 2)

	for i := 0; i < 2; i++ {
		i := i
		go func() {
			buf := make([]byte, 1)
			err := conn.ReadAt(buf, uint64(i))
			results <- struct {
				idx int
				buf []byte
				err error
			}{i, buf, err}
		}()
	}

	seen := map[int][]byte{}
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("ReadAt(%d): %v", r.idx, r.err)
		}
		seen[r.idx] = r.buf
	}

	if seen[0][0] != 0 || seen[1][0] != 1 {
		t.Fatalf("out-of-order responses not demultiplexed correctly: %v", seen)
	}
}

func TestTimeoutOnSilentPeer(t *testing.T) {
	ln, path := listenUnix(t)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		peer, err := ln.Accept()
		if err != nil {
			return
		}
		close(accepted)
		// Never respond; keep the connection open until the test closes it.
		buf := make([]byte, 1)
		peer.Read(buf)
	}()

	conn := dialTest(t, path, func(cfg *Config) {
		cfg.RequestTimeout = 30 * time.Millisecond
	})
	defer conn.Shutdown()

	<-accepted

	buf := make([]byte, 8)
	err := conn.ReadAt(buf, 0)
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}

	stats := conn.Stats()
	if stats.Timeouts != 1 {
		t.Fatalf("expected one recorded timeout, got %+v", stats)
	}
}

func TestDisconnectionFailsPendingRequests(t *testing.T) {
	ln, path := listenUnix(t)
	defer ln.Close()

	peerAccepted := make(chan net.Conn, 1)
	go func() {
		peer, err := ln.Accept()
		if err != nil {
			return
		}
		peerAccepted <- peer
		buf := make([]byte, 1)
		peer.Read(buf) // block until the client tears down the socket
	}()

	conn := dialTest(t, path, func(cfg *Config) {
		cfg.RequestTimeout = 10 * time.Second
	})

	peer := <-peerAccepted

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 8)
		errCh <- conn.ReadAt(buf, 0)
	}()

	// Give the request time to register before severing the connection.
	time.Sleep(20 * time.Millisecond)
	peer.Close()

	select {
	case err := <-errCh:
		// A disconnection discovered while a request is still pending is
		// indistinguishable from that request timing out: both surface as
		// ErrTimeout, never ErrConnectionClosed (that sentinel is reserved
		// for requests submitted after Shutdown has already completed).
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout after disconnection, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ReadAt did not return after the peer disconnected")
	}

	conn.Shutdown()
}

func TestUnknownSequenceResponseIsIgnored(t *testing.T) {
	ln, path := listenUnix(t)
	defer ln.Close()

	go func() {
		peer, err := ln.Accept()
		if err != nil {
			return
		}
		defer peer.Close()

		var req protocol.Message
		if err := protocol.Decode(peer, &req); err != nil {
			return
		}

		// Answer with a sequence nobody registered, then the real one.
		bogus := protocol.Message{Seq: req.Seq + 1000, Kind: protocol.KindResponse, Data: []byte{0xAA}}
		protocol.Encode(peer, &bogus)

		resp := protocol.Message{Seq: req.Seq, Kind: protocol.KindResponse, Data: []byte{0x42}}
		protocol.Encode(peer, &resp)
	}()

	conn := dialTest(t, path, nil)
	defer conn.Shutdown()

	buf := make([]byte, 1)
	if err := conn.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if buf[0] != 0x42 {
		t.Fatalf("got %x, want 0x42", buf[0])
	}
}

func TestRemoteErrorFrame(t *testing.T) {
	ln, path := listenUnix(t)
	defer ln.Close()

	go func() {
		peer, err := ln.Accept()
		if err != nil {
			return
		}
		defer peer.Close()

		var req protocol.Message
		if err := protocol.Decode(peer, &req); err != nil {
			return
		}
		resp := protocol.Message{Seq: req.Seq, Kind: protocol.KindError, Data: []byte("no space left on device")}
		protocol.Encode(peer, &resp)
	}()

	conn := dialTest(t, path, nil)
	defer conn.Shutdown()

	err := conn.WriteAt([]byte("data"), 0)
	if err == nil {
		t.Fatalf("expected an error from the remote Error frame")
	}

	stats := conn.Stats()
	if stats.RemoteErrors != 1 {
		t.Fatalf("expected one recorded remote error, got %+v", stats)
	}
}

func TestShutdownIsIdempotentAndRejectsNewRequests(t *testing.T) {
	ln, path := listenUnix(t)
	defer ln.Close()
	go func() {
		peer, err := ln.Accept()
		if err != nil {
			return
		}
		defer peer.Close()
		buf := make([]byte, 1)
		peer.Read(buf)
	}()

	conn := dialTest(t, path, nil)

	if err := conn.Shutdown(); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := conn.Shutdown(); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got: %v", err)
	}

	buf := make([]byte, 8)
	if err := conn.ReadAt(buf, 0); err != ErrConnectionClosed {
		t.Fatalf("ReadAt after Shutdown: got %v, want ErrConnectionClosed", err)
	}
}

func TestInvalidRequestKindRejected(t *testing.T) {
	ln, path := listenUnix(t)
	defer ln.Close()
	go func() {
		peer, err := ln.Accept()
		if err != nil {
			return
		}
		defer peer.Close()
		buf := make([]byte, 1)
		peer.Read(buf)
	}()

	conn := dialTest(t, path, nil)
	defer conn.Shutdown()

	if err := conn.processRequest(protocol.KindEOF, nil, 0); err != ErrInvalidArgument {
		t.Fatalf("processRequest(KindEOF): got %v, want ErrInvalidArgument", err)
	}
}

func TestDialRejectsOverlongSocketPath(t *testing.T) {
	cfg := DefaultConfig("/tmp/" + string(make([]byte, 200)))
	_, err := Dial(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected Dial to reject an overlong socket path")
	}
}

// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command tgt-rpc-echo is a minimal storage endpoint speaking the tgt-rpc
// wire protocol directly: it backs reads and writes with an in-memory byte
// array, so rpcclient can be exercised end to end without a real block
// device. It exists purely as a test peer.
package main

import (
	"log"
	"net"
	"os"
	"sync"

	"github.com/urfave/cli"

	"github.com/shuo-wu/tgt/protocol"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "tgt-rpc-echo"
	myApp.Usage = "serve a tgt-rpc endpoint backed by an in-memory store"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket,s",
			Value: "/var/run/tgt-rpc.sock",
			Usage: "Unix domain socket to listen on",
		},
		cli.IntFlag{
			Name:  "size",
			Value: 64 << 20,
			Usage: "size in bytes of the backing store",
		},
	}

	myApp.Action = func(c *cli.Context) error {
		if err := protocol.ValidateSocketPath(c.String("socket")); err != nil {
			checkError(err)
		}
		os.Remove(c.String("socket"))

		addr, err := net.ResolveUnixAddr("unix", c.String("socket"))
		checkError(err)
		listener, err := net.ListenUnix("unix", addr)
		checkError(err)
		defer listener.Close()

		log.Println("listening on:", listener.Addr())
		log.Println("backing store size:", c.Int("size"))

		store := newStore(c.Int("size"))

		for {
			conn, err := listener.Accept()
			if err != nil {
				log.Println("accept:", err)
				continue
			}
			go serve(conn, store)
		}
	}

	if err := myApp.Run(os.Args); err != nil {
		checkError(err)
	}
}

// store is the backing byte array for read/write requests, synchronised by
// a single mutex since the echo peer is a test fixture, not a performance
// target.
type store struct {
	mu   sync.Mutex
	data []byte
}

func newStore(size int) *store {
	return &store{data: make([]byte, size)}
}

func (s *store) readAt(buf []byte, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset > uint64(len(s.data)) || offset+uint64(len(buf)) > uint64(len(s.data)) {
		return errOutOfRange
	}
	copy(buf, s.data[offset:])
	return nil
}

func (s *store) writeAt(buf []byte, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset > uint64(len(s.data)) || offset+uint64(len(buf)) > uint64(len(s.data)) {
		return errOutOfRange
	}
	copy(s.data[offset:], buf)
	return nil
}

var errOutOfRange = &rangeError{"request out of range"}

type rangeError struct{ msg string }

func (e *rangeError) Error() string { return e.msg }

// serve handles one connection: it decodes frames until the peer
// disconnects, answering each in turn. Requests are handled sequentially per
// connection, so responses go out in request order; rpcclient's reader does
// not rely on that order, since it matches each response to its waiter by
// sequence number.
func serve(conn net.Conn, st *store) {
	defer conn.Close()

	for {
		var req protocol.Message
		if err := protocol.Decode(conn, &req); err != nil {
			log.Println("echo: decode:", err)
			return
		}

		resp := protocol.Message{Seq: req.Seq}
		switch req.Kind {
		case protocol.KindRead:
			buf := make([]byte, req.Length)
			if err := st.readAt(buf, req.Offset); err != nil {
				resp.Kind = protocol.KindError
				resp.Data = []byte(err.Error())
			} else {
				resp.Kind = protocol.KindResponse
				resp.Data = buf
			}
		case protocol.KindWrite:
			if err := st.writeAt(req.Data, req.Offset); err != nil {
				resp.Kind = protocol.KindError
				resp.Data = []byte(err.Error())
			} else {
				resp.Kind = protocol.KindResponse
			}
		default:
			resp.Kind = protocol.KindError
			resp.Data = []byte("unsupported request kind")
		}

		if err := protocol.Encode(conn, &resp); err != nil {
			log.Println("echo: encode:", err)
			return
		}
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}

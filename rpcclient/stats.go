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

package rpcclient

import (
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// stats holds per-connection counters.
type stats struct {
	reads        atomic.Uint64
	writes       atomic.Uint64
	bytesIn      atomic.Uint64
	bytesOut     atomic.Uint64
	timeouts     atomic.Uint64
	remoteErrors atomic.Uint64
}

// Snapshot is a point-in-time copy of a Connection's counters.
type Snapshot struct {
	Reads        uint64
	Writes       uint64
	BytesIn      uint64
	BytesOut     uint64
	Timeouts     uint64
	RemoteErrors uint64
}

func (s *stats) recordRead()            { s.reads.Add(1) }
func (s *stats) recordWrite()           { s.writes.Add(1) }
func (s *stats) recordBytesIn(n uint64)  { s.bytesIn.Add(n) }
func (s *stats) recordBytesOut(n uint64) { s.bytesOut.Add(n) }
func (s *stats) recordTimeout()         { s.timeouts.Add(1) }
func (s *stats) recordRemoteError()     { s.remoteErrors.Add(1) }

func (s *stats) snapshot() Snapshot {
	return Snapshot{
		Reads:        s.reads.Load(),
		Writes:       s.writes.Load(),
		BytesIn:      s.bytesIn.Load(),
		BytesOut:     s.bytesOut.Load(),
		Timeouts:     s.timeouts.Load(),
		RemoteErrors: s.remoteErrors.Load(),
	}
}

// Stats returns a snapshot of this connection's counters.
func (c *Connection) Stats() Snapshot {
	return c.stats.snapshot()
}

// watchStatsSignal dumps the connection's stats to the log whenever the
// process receives SIGUSR1. Exits once the connection's shutdown broadcast
// fires.
func (c *Connection) watchStatsSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)

	for {
		select {
		case <-ch:
			log.Printf("rpcclient: stats: %+v", c.Stats())
		case <-c.closed:
			return
		}
	}
}

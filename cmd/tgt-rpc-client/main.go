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

// Command tgt-rpc-client is a thin CLI driver around rpcclient: it dials a
// remote storage endpoint and issues a single read or write, printing the
// result.
package main

import (
	"context"
	"encoding/hex"
	"log"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/shuo-wu/tgt/rpcclient"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "tgt-rpc-client"
	myApp.Usage = "issue a single read or write against a tgt-rpc endpoint"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket,s",
			Value: "/var/run/tgt-rpc.sock",
			Usage: "Unix domain socket of the storage endpoint",
		},
		cli.StringFlag{
			Name:  "config,c",
			Usage: "path to a JSON config file overriding the socket, timeout and retry flags",
		},
		cli.StringFlag{
			Name:  "op",
			Value: "read",
			Usage: "operation to perform: read or write",
		},
		cli.Uint64Flag{
			Name:  "offset",
			Value: 0,
			Usage: "byte offset of the request",
		},
		cli.IntFlag{
			Name:  "length",
			Value: 512,
			Usage: "length in bytes for a read",
		},
		cli.StringFlag{
			Name:  "data",
			Usage: "hex-encoded payload for a write",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 15 * time.Second,
			Usage: "per-request timeout",
		},
		cli.DurationFlag{
			Name:  "retry-interval",
			Value: 5 * time.Second,
			Usage: "pause between connection attempts",
		},
		cli.IntFlag{
			Name:  "retry-count",
			Value: 5,
			Usage: "number of connection attempts before giving up",
		},
	}

	myApp.Action = func(c *cli.Context) error {
		cfg := rpcclient.DefaultConfig(c.String("socket"))
		cfg.RequestTimeout = c.Duration("timeout")
		cfg.RetryInterval = c.Duration("retry-interval")
		cfg.RetryCount = c.Int("retry-count")

		if path := c.String("config"); path != "" {
			checkError(rpcclient.LoadConfigFile(&cfg, path))
		}

		log.Println("socket:", cfg.SocketPath)
		log.Println("request timeout:", cfg.RequestTimeout)

		conn, err := rpcclient.Dial(context.Background(), cfg)
		checkError(err)
		defer conn.Shutdown()

		switch c.String("op") {
		case "read":
			buf := make([]byte, c.Int("length"))
			checkError(conn.ReadAt(buf, c.Uint64("offset")))
			log.Println("read:", hex.EncodeToString(buf))
		case "write":
			data, err := hex.DecodeString(c.String("data"))
			checkError(err)
			checkError(conn.WriteAt(data, c.Uint64("offset")))
			log.Println("write ok")
		default:
			log.Fatalf("unknown op: %s", c.String("op"))
		}

		log.Printf("stats: %+v", conn.Stats())
		return nil
	}

	if err := myApp.Run(os.Args); err != nil {
		checkError(err)
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}

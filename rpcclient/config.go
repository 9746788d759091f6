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
	"encoding/json"
	"os"
	"time"
)

// Config collects the connection's tunables: socket path, connect retry
// policy, and per-request timeout.
type Config struct {
	// SocketPath is the Unix domain socket path to dial.
	SocketPath string `json:"socket_path"`

	// RetryInterval is the pause between connection attempts.
	RetryInterval time.Duration `json:"retry_interval"`

	// RetryCount is the number of connection attempts before giving up.
	RetryCount int `json:"retry_count"`

	// RequestTimeout is how long an outstanding request may remain
	// unanswered before the timeout goroutine fails it.
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultConfig returns sensible defaults: 5s retry interval, 5 retries,
// 15s request timeout.
func DefaultConfig(socketPath string) Config {
	return Config{
		SocketPath:     socketPath,
		RetryInterval:  5 * time.Second,
		RetryCount:     5,
		RequestTimeout: 15 * time.Second,
	}
}

// LoadConfigFile overrides cfg's fields from a JSON file.
func LoadConfigFile(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cfg)
}

package rpcclient

import "github.com/pkg/errors"

// Sentinel errors returned by this package. Wrap these with errors.Wrap/
// errors.WithStack to add call-site context; compare with errors.Is.
var (
	// ErrInvalidArgument is returned when processRequest is asked to issue
	// anything other than a read or a write.
	ErrInvalidArgument = errors.New("rpcclient: invalid request kind")

	// ErrConnectionClosed is returned for any request submitted after
	// Shutdown has been called.
	ErrConnectionClosed = errors.New("rpcclient: connection closed")

	// ErrTransport indicates a send or receive failure at the channel
	// layer; it always escalates to a full connection shutdown.
	ErrTransport = errors.New("rpcclient: transport error")

	// ErrRemote indicates the peer returned an Error frame for this
	// specific request. Other outstanding requests are unaffected.
	ErrRemote = errors.New("rpcclient: remote error")

	// ErrTimeout indicates a request never received a response while
	// still registered — either its deadline elapsed, or the connection
	// was torn down while it was outstanding. The two are indistinguishable
	// to the caller by design.
	ErrTimeout = errors.New("rpcclient: request timed out")

	// ErrConnectFailed indicates the initial dial failed after exhausting
	// Config.RetryCount attempts.
	ErrConnectFailed = errors.New("rpcclient: failed to connect")

	// ErrSocketPathTooLong indicates the requested socket path would
	// overflow sockaddr_un.
	ErrSocketPathTooLong = errors.New("rpcclient: socket path too long")
)

package wa

// CloseReason classifies why the session's connection went away.
type CloseReason int

const (
	// CloseTransient is a recoverable drop; the supervisor reconnects
	// after a short delay.
	CloseTransient CloseReason = iota
	// CloseRestartRequired means the server asked for a fresh connection
	// (e.g. the stream was replaced); reconnect quickly.
	CloseRestartRequired
	// CloseLoggedOut means the pairing was revoked; credentials are dead
	// and must be wiped.
	CloseLoggedOut
	// CloseNormal is an expected closure; no automatic reconnect.
	CloseNormal
)

func (r CloseReason) String() string {
	switch r {
	case CloseTransient:
		return "transient"
	case CloseRestartRequired:
		return "restart-required"
	case CloseLoggedOut:
		return "logged-out"
	case CloseNormal:
		return "normal"
	}
	return "unknown"
}

// Event is one item on a session's event stream. The supervisor is the only
// consumer; events are applied strictly in emission order.
type Event interface{ event() }

// QREvent carries a fresh pairing code.
type QREvent struct {
	Code string
}

// ConnectedEvent signals a successful connection with a paired identity.
type ConnectedEvent struct {
	Phone string
}

// ClosedEvent signals the connection went away.
type ClosedEvent struct {
	Reason  CloseReason
	Code    int
	Message string
}

func (QREvent) event()        {}
func (ConnectedEvent) event() {}
func (ClosedEvent) event()    {}

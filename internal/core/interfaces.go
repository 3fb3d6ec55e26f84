package core

// Frame is a raw signaling payload (UTF-8 JSON on the wire).
type Frame []byte

// SignalConnection abstracts a messaging transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a frame without blocking. It returns an error when
	// the connection is closed or its outbound buffer is full; callers
	// treat both as a dropped send, never as a retry trigger.
	TrySend(Frame) error
	Close()
	// Open reports whether the transport can still accept sends.
	Open() bool
}

package core

// Packet is one encoded outbound event.
type Packet []byte

// SignalConnection abstracts the messaging transport of one client.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full buffer is reported as an error.
type SignalConnection interface {
	TrySend(Packet) error
	Close()
}

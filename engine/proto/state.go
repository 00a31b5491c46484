package proto

// ConnState is the lifecycle state of a client connection
type ConnState int

const (
	// Handshaking until both public keys are exchanged
	Handshaking ConnState = iota
	// Lobby after the handshake, before login
	Lobby
	// Authenticated after a successful login
	Authenticated
	// Closed is final
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Handshaking:
		return "Handshaking"
	case Lobby:
		return "Lobby"
	case Authenticated:
		return "Authenticated"
	case Closed:
		return "Closed"
	}
	return "Unknown"
}

// StateMask is a set of connection states
type StateMask uint8

// States builds a StateMask
func States(states ...ConnState) StateMask {
	var m StateMask
	for _, s := range states {
		m |= 1 << uint(s)
	}
	return m
}

// Has checks if s is in the mask
func (m StateMask) Has(s ConnState) bool {
	return m&(1<<uint(s)) != 0
}

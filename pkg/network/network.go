package network

import (
	"errors"
)

var (
	// ErrIdentityTaken is returned when registering an identity that is already live.
	ErrIdentityTaken = errors.New("identity already registered")
	// ErrIdentityNotFound is returned when an identity is not registered.
	ErrIdentityNotFound = errors.New("identity not registered")
	// ErrInvalidIdentity is returned for empty identities.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrSendBufferFull is returned when a connection cannot accept more outbound frames.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Conn is an opaque handle to a client connection.
// Send must not block on the network.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(b []byte) error
}

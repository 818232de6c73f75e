package network

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cbodonnell/tabletop/pkg/types"
)

// ConnectionInfo pairs a registered identity with its connection.
type ConnectionInfo struct {
	Identity types.Identity
	Conn     Conn
}

// ConnectionRegistry maps identities to live connections.
// A connection may hold several identities; an identity maps to one connection.
type ConnectionRegistry struct {
	connections map[types.Identity]Conn
	lock        sync.RWMutex
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[types.Identity]Conn),
	}
}

// Register binds identity to conn. The registry is unchanged on error.
func (r *ConnectionRegistry) Register(identity types.Identity, conn Conn) error {
	if identity == "" {
		return ErrInvalidIdentity
	}
	if conn == nil {
		return fmt.Errorf("register %q: connection is nil", identity)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.connections[identity]; ok {
		return fmt.Errorf("%w: %s", ErrIdentityTaken, identity)
	}
	r.connections[identity] = conn
	return nil
}

// Unregister removes identity and returns the connection it was bound to.
func (r *ConnectionRegistry) Unregister(identity types.Identity) (Conn, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	conn, ok := r.connections[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, identity)
	}
	delete(r.connections, identity)
	return conn, nil
}

// Lookup returns the connection registered for identity.
func (r *ConnectionRegistry) Lookup(identity types.Identity) (Conn, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	conn, ok := r.connections[identity]
	return conn, ok
}

// FindIdentity returns the first identity, in sorted order, held by conn.
func (r *ConnectionRegistry) FindIdentity(conn Conn) (types.Identity, bool) {
	identities := r.FindIdentities(conn)
	if len(identities) == 0 {
		return "", false
	}
	return identities[0], true
}

// FindIdentities returns every identity held by conn in sorted order.
func (r *ConnectionRegistry) FindIdentities(conn Conn) []types.Identity {
	if conn == nil {
		return nil
	}

	r.lock.RLock()
	defer r.lock.RUnlock()

	var identities []types.Identity
	for identity, c := range r.connections {
		if c.ID() == conn.ID() {
			identities = append(identities, identity)
		}
	}
	sortIdentities(identities)
	return identities
}

// Holds reports whether conn is registered under identity.
func (r *ConnectionRegistry) Holds(conn Conn, identity types.Identity) bool {
	c, ok := r.Lookup(identity)
	return ok && conn != nil && c.ID() == conn.ID()
}

// Snapshot returns the current registrations sorted by identity.
func (r *ConnectionRegistry) Snapshot() []ConnectionInfo {
	r.lock.RLock()
	infos := make([]ConnectionInfo, 0, len(r.connections))
	for identity, conn := range r.connections {
		infos = append(infos, ConnectionInfo{Identity: identity, Conn: conn})
	}
	r.lock.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Identity < infos[j].Identity })
	return infos
}

// ForEach visits a snapshot of the registrations taken before the first call to visit.
// visit may modify the registry.
func (r *ConnectionRegistry) ForEach(visit func(info ConnectionInfo)) {
	for _, info := range r.Snapshot() {
		visit(info)
	}
}

// Identities returns the registered identities in sorted order.
func (r *ConnectionRegistry) Identities() []types.Identity {
	r.lock.RLock()
	identities := make([]types.Identity, 0, len(r.connections))
	for identity := range r.connections {
		identities = append(identities, identity)
	}
	r.lock.RUnlock()

	sortIdentities(identities)
	return identities
}

func (r *ConnectionRegistry) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.connections)
}

func sortIdentities(identities []types.Identity) {
	sort.Slice(identities, func(i, j int) bool { return identities[i] < identities[j] })
}

package manager

import (
	"sync"
	"sync/atomic"

	"github.com/smnsjas/go-distant/kind"
	"github.com/smnsjas/go-distant/netproto"
)

// connection is one entry in the manager's registry: a live tunnel to a
// remote distant server, reachable for OpenChannel tunneling.
type connection struct {
	info   ConnectionInfo
	remote *netproto.FramedConn
	closed atomic.Bool

	channelsMu sync.Mutex
	channels   map[uint64]*RawChannel
}

// registry owns the set of live outbound connections (spec §4.5).
// Insertion and removal are both performed under the exclusive lock
// held across allocate-id-and-construct / remove; a removed connection's
// teardown (closing its channels and remote transport) runs after the
// lock is released. This follows the registry invariant in §4.5 and the
// lock ordering rule in §5:
// connection-registry -> per-connection-local -> global-process-registry.
type registry struct {
	mu      sync.RWMutex
	nextID  atomic.Uint64
	byID    map[uint64]*connection
	ordered []uint64
}

func newRegistry() *registry {
	return &registry{byID: make(map[uint64]*connection)}
}

// insert allocates a fresh ConnectionId and registers conn under it,
// never reusing a retired id (spec §3 lifecycle invariant).
func (r *registry) insert(dest Destination, opts Map, remote *netproto.FramedConn) *connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID.Add(1) // 0 is never valid (spec §3), so ids start at 1
	conn := &connection{
		info:     ConnectionInfo{ID: id, Destination: dest, Options: opts},
		remote:   remote,
		channels: make(map[uint64]*RawChannel),
	}
	r.byID[id] = conn
	r.ordered = append(r.ordered, id)
	return conn
}

func (r *registry) get(id uint64) (*connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// remove retires id permanently; it is never reused.
func (r *registry) remove(id uint64) (*connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	for i, oid := range r.ordered {
		if oid == id {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return c, true
}

// list snapshots the registry, ordered by id ascending (spec §4.5).
func (r *registry) list() *ConnectionList {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewConnectionList()
	ids := make([]uint64, len(r.ordered))
	copy(ids, r.ordered)
	// ordered already reflects insertion order; ascending-by-id is the
	// same thing here since ids are monotonically allocated.
	for _, id := range ids {
		out.add(id, r.byID[id].info.Destination)
	}
	return out
}

func errNotFound(id uint64) *kind.Error {
	return kind.New(kind.NotFound, "connection %d not found", id)
}

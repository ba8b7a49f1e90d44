// Package ring implements the consistent-hash routing ring that maps a
// routing key to one backend out of a dynamic pool. It has no concurrency
// control of its own: the dispatch engine is its sole owner and mutator,
// running on a single goroutine per worker (see internal/dispatch).
package ring

import (
	"errors"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Replicas is the number of virtual nodes placed per backend (K in the
// design doc). Fixed at 20, matching the original proxy.
const Replicas = 20

// ErrEmpty is returned by Get when the ring has no backends.
var ErrEmpty = errors.New("ring: no backend")

// Backend is the minimal identity a ring member must expose: a name used to
// derive virtual-node positions and for tie-break ordering. Production code
// has exactly one implementation (backend.Backend); the interface exists so
// the ring can be tested without constructing a real UDP socket per node.
type Backend interface {
	Name() string
}

type vnode struct {
	pos     uint64
	backend Backend
	replica int
}

// Ring is a sorted-by-position consistent hash ring. The zero value is an
// empty, usable ring.
type Ring struct {
	nodes   []vnode
	present map[string]bool
}

// New returns an empty ring.
func New() *Ring {
	return &Ring{present: make(map[string]bool)}
}

// hashPosition hashes an arbitrary byte string into the ring's 64-bit space.
// The same function is used for virtual-node placement (Add) and for key
// lookup (Get): using two different functions would silently break the
// consistent-hash guarantee.
func hashPosition(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// vnodeKey derives the placement key for virtual node i of backend name,
// matching the original's hash(name(backend) || i) scheme.
func vnodeKey(name string, i int) []byte {
	return append([]byte(name), []byte(strconv.Itoa(i))...)
}

// Add inserts replicas virtual nodes for backend. Idempotent by identity: if
// backend is already present, the ring is unchanged.
func (r *Ring) Add(b Backend, replicas int) {
	name := b.Name()
	if r.present[name] {
		return
	}
	r.present[name] = true

	for i := 0; i < replicas; i++ {
		pos := hashPosition(vnodeKey(name, i))
		r.nodes = append(r.nodes, vnode{pos: pos, backend: b, replica: i})
	}

	sort.Slice(r.nodes, func(i, j int) bool {
		a, c := r.nodes[i], r.nodes[j]
		if a.pos != c.pos {
			return a.pos < c.pos
		}
		// Tie-break by (backend name, replica index) so ring state is a
		// pure function of membership, independent of insertion order.
		an, cn := a.backend.Name(), c.backend.Name()
		if an != cn {
			return an < cn
		}
		return a.replica < c.replica
	})
}

// Remove deletes every virtual node belonging to b. No-op if b is absent.
func (r *Ring) Remove(b Backend) {
	name := b.Name()
	if !r.present[name] {
		return
	}
	delete(r.present, name)

	kept := r.nodes[:0]
	for _, n := range r.nodes {
		if n.backend.Name() != name {
			kept = append(kept, n)
		}
	}
	r.nodes = kept
}

// Contains reports whether b is currently present in the ring.
func (r *Ring) Contains(b Backend) bool {
	return r.present[b.Name()]
}

// Len returns the number of distinct backends present.
func (r *Ring) Len() int {
	return len(r.present)
}

// Get returns the backend owning the first virtual node whose position is
// greater than or equal to hash(key), wrapping around to the first node if
// key's hash exceeds every position.
func (r *Ring) Get(key []byte) (Backend, error) {
	if len(r.nodes) == 0 {
		return nil, ErrEmpty
	}
	h := hashPosition(key)
	i := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].pos >= h
	})
	if i == len(r.nodes) {
		i = 0
	}
	return r.nodes[i].backend, nil
}

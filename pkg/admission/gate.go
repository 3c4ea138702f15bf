// Package admission limits every client address to one in-flight request.
package admission

import (
	"sort"
	"sync"
)

// Gate tracks the source addresses that currently have a request in flight.
//
// A Gate is not a security control: it only keeps one client from
// monopolizing the server by opening many parallel sockets. It does not
// limit the total number of concurrent requests across distinct addresses.
//
// Thread safety:
// All methods are safe for concurrent use. The internal mutex is held only
// for the membership test and update, never across I/O.
type Gate struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// New creates an empty gate.
func New() *Gate {
	return &Gate{active: make(map[string]struct{})}
}

// Acquire admits ip if it has no request in flight.
//
// Returns false, leaving the gate unchanged, when ip is already active.
func (g *Gate) Acquire(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[ip]; busy {
		return false
	}
	g.active[ip] = struct{}{}
	return true
}

// Release removes ip from the gate. Releasing an address that is not
// active is a no-op, so cleanup paths may call it unconditionally.
func (g *Gate) Release(ip string) {
	g.mu.Lock()
	delete(g.active, ip)
	g.mu.Unlock()
}

// Active reports whether ip currently holds the gate.
func (g *Gate) Active(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[ip]
	return ok
}

// Len returns the number of admitted addresses.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// Snapshot returns the admitted addresses in sorted order.
func (g *Gate) Snapshot() []string {
	g.mu.Lock()
	ips := make([]string, 0, len(g.active))
	for ip := range g.active {
		ips = append(ips, ip)
	}
	g.mu.Unlock()

	sort.Strings(ips)
	return ips
}

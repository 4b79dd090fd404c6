/*
Package chat contains the presence and message-routing core.

This file defines the Registry, the live bidirectional mapping between authenticated
users and realtime connections. It is the only mutable shared state in the core with
no owning transaction; every mutation is applied as one atomic step under the lock so
the two directions of the mapping can never disagree.
*/
package chat

import "sync"

// TransitionFunc observes presence transitions. It is invoked synchronously while
// the registry lock is held, with a snapshot of every client bound after the
// mutation; implementations must not block.
type TransitionFunc func(userID string, online bool, bound []*Client)

// Registry tracks which users currently hold a live realtime connection.
//
// Each user has at most one live connection and each connection is bound to at
// most one user. A new bind for an already-bound user replaces the prior binding
// (last-authenticated-wins); the prior connection is left open. State lives only
// in memory: after a process restart every user is offline until they
// re-authenticate.
type Registry struct {
	mu sync.RWMutex

	// The two directions of the binding, always mutated together. userOf records
	// the user id each connection was bound with, so a later mutation of the
	// client's identity (re-authentication) cannot leave a stale byUser entry.
	byUser map[string]*Client
	userOf map[string]string

	onTransition TransitionFunc
}

// NewRegistry constructs an empty Registry. onTransition may be nil.
func NewRegistry(onTransition TransitionFunc) *Registry {
	return &Registry{
		byUser:       make(map[string]*Client),
		userOf:       make(map[string]string),
		onTransition: onTransition,
	}
}

// Bind records the binding between the client's connection and userID, evicting
// any pre-existing binding on either side. It returns the client that previously
// held the user's binding, if any; per the replacement contract that stale
// connection is left open, the caller at most logs it.
func (r *Registry) Bind(c *Client, userID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	// This connection re-authenticating as a different user takes the old
	// identity offline first.
	if oldUID, ok := r.userOf[c.id]; ok && oldUID != userID {
		delete(r.byUser, oldUID)
		delete(r.userOf, c.id)
		if r.onTransition != nil {
			r.onTransition(oldUID, false, r.boundLocked())
		}
	}

	// The user's previous connection loses its binding (signed in elsewhere).
	evicted := r.byUser[userID]
	if evicted != nil && evicted != c {
		delete(r.userOf, evicted.id)
	}

	r.byUser[userID] = c
	r.userOf[c.id] = userID

	if r.onTransition != nil {
		r.onTransition(userID, true, r.boundLocked())
	}

	if evicted == c {
		return nil
	}
	return evicted
}

// Unbind removes the connection's binding and returns the user id that was bound.
// A connection whose binding was already replaced by a newer one (stale unbind)
// is a no-op and must not disturb the newer binding.
func (r *Registry) Unbind(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userOf[c.id]
	if !ok {
		return "", false
	}

	delete(r.userOf, c.id)
	delete(r.byUser, userID)

	if r.onTransition != nil {
		r.onTransition(userID, false, r.boundLocked())
	}

	return userID, true
}

// LookupConnection returns the live client bound to the user, or false when the
// user is offline.
func (r *Registry) LookupConnection(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byUser[userID]
	return c, ok
}

// Bound returns a snapshot of every currently bound client.
func (r *Registry) Bound() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.boundLocked()
}

// OnlineCount returns the number of currently bound users.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser)
}

func (r *Registry) boundLocked() []*Client {
	bound := make([]*Client, 0, len(r.byUser))
	for _, c := range r.byUser {
		bound = append(bound, c)
	}
	return bound
}

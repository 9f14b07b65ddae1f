package ingest

import (
	"sync"

	"solana-autolink/internal/domain"
)

type subKey struct {
	UserID  string
	Address string
	Kind    domain.SubscriptionType
}

// registry tracks which remote subscription id serves each
// (user, address, kind) while the process runs. The durable record lives
// in the subscription store; this is the in-flight view.
type registry struct {
	mu     sync.Mutex
	remote map[subKey]int64
	byID   map[int64]subKey
}

func newRegistry() *registry {
	return &registry{
		remote: make(map[subKey]int64),
		byID:   make(map[int64]subKey),
	}
}

func (r *registry) put(key subKey, remoteID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.remote[key]; ok {
		delete(r.byID, old)
	}
	r.remote[key] = remoteID
	r.byID[remoteID] = key
}

func (r *registry) remoteID(key subKey) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.remote[key]
	return id, ok
}

func (r *registry) remove(key subKey) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.remote[key]
	if ok {
		delete(r.remote, key)
		delete(r.byID, id)
	}
	return id, ok
}

// removeByID drops the binding for a remote id, returning its key.
func (r *registry) removeByID(remoteID int64) (subKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byID[remoteID]
	if ok {
		delete(r.byID, remoteID)
		delete(r.remote, key)
	}
	return key, ok
}

// rebind moves a key from an old remote id to a new one after reconnect.
func (r *registry) rebind(oldID, newID int64) (subKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byID[oldID]
	if !ok {
		return subKey{}, false
	}
	delete(r.byID, oldID)
	r.byID[newID] = key
	r.remote[key] = newID
	return key, true
}

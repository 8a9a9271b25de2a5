package simulation

import (
	"encoding/binary"
	"slices"

	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/sasha-s/go-deadlock"
	"github.com/zeebo/xxh3"
	"go.uber.org/atomic"
)

// entry is the registry record of one handle. The state and lock are nil until the entity is first used.
type entry struct {
	lock  *Lock
	state *entity.State
}

type shard struct {
	deadlock.RWMutex
	entries map[entity.Handle]*entry
}

// registry maps entity handles to their state. Handles are spread over several shards so that lookups
// of unrelated entities do not contend.
type registry struct {
	shards []*shard
	next   atomic.Uint64
}

func newRegistry(shards int) *registry {
	r := &registry{shards: make([]*shard, shards)}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[entity.Handle]*entry)}
	}
	return r
}

func (r *registry) shard(h entity.Handle) *shard {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(h))
	return r.shards[xxh3.Hash(b[:])%uint64(len(r.shards))]
}

// register allocates a new handle.
func (r *registry) register() entity.Handle {
	h := entity.Handle(r.next.Inc())
	s := r.shard(h)
	s.Lock()
	s.entries[h] = &entry{}
	s.Unlock()
	return h
}

func (r *registry) deregister(h entity.Handle) bool {
	s := r.shard(h)
	s.Lock()
	defer s.Unlock()
	if _, ok := s.entries[h]; !ok {
		return false
	}
	delete(s.entries, h)
	return true
}

func (r *registry) registered(h entity.Handle) bool {
	s := r.shard(h)
	s.RLock()
	defer s.RUnlock()
	_, ok := s.entries[h]
	return ok
}

func (r *registry) handles() []entity.Handle {
	var handles []entity.Handle
	for _, s := range r.shards {
		s.RLock()
		for h := range s.entries {
			handles = append(handles, h)
		}
		s.RUnlock()
	}
	slices.Sort(handles)
	return handles
}

func (r *registry) len() int {
	var n int
	for _, s := range r.shards {
		s.RLock()
		n += len(s.entries)
		s.RUnlock()
	}
	return n
}

// load returns the entry of the handle passed, creating its state and lock on first use. Concurrent first
// uses may each create a state; only the first one stored is kept.
func (r *registry) load(h entity.Handle, create func(entity.Handle) (*entity.State, error)) (*entry, error) {
	s := r.shard(h)
	s.RLock()
	e, ok := s.entries[h]
	var ready bool
	if ok {
		ready = e.state != nil
	}
	s.RUnlock()
	if !ok {
		return nil, oerror.ErrUnknownEntity
	}
	if ready {
		return e, nil
	}

	st, err := create(h)
	if err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()
	e, ok = s.entries[h]
	if !ok {
		return nil, oerror.ErrUnknownEntity
	}
	if e.state == nil {
		e.state, e.lock = st, newLock()
	}
	return e, nil
}

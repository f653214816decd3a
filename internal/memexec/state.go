// Package memexec is the in-memory backend: it compiles ir.Sequence into
// a tree of callable closures run against an emulated, layered
// Redis-command subset (internal/memexec's State/Machine), mirroring the
// teacher's MockStore but storing values as value.Value rather than RESP
// wire bytes, and supporting the symbolic/Lua-bridge quirks spec.md §4.2
// requires (nil-vs-false-vs-empty-table normalisation, tonumber rules).
package memexec

import (
	"container/list"
	"sort"
	"time"
)

// State is one layer of the emulated key-value store. A nil parent makes
// it the root; a non-nil parent makes it a pipeline's child overlay that
// falls back to the parent for reads not yet present locally (spec.md
// §4.4 "Layered state for pipelines").
type State struct {
	parent  *State
	vals    map[string]valEntry
	queues  map[string]*list.List
	hashes  map[string]map[string]string
	zorder  map[string][]string
	zscores map[string]map[string]float64
}

type valEntry struct {
	value  string
	expire *time.Time // nil means no expiry
}

// NewState creates a root state with no parent.
func NewState() *State { return newState(nil) }

func newState(parent *State) *State {
	return &State{
		parent:  parent,
		vals:    map[string]valEntry{},
		queues:  map[string]*list.List{},
		hashes:  map[string]map[string]string{},
		zorder:  map[string][]string{},
		zscores: map[string]map[string]float64{},
	}
}

// NewChild returns a fresh overlay state whose reads fall back to s.
func (s *State) NewChild() *State { return newState(s) }

// Apply merges a child state's overlay into s and prunes stale entries,
// implementing pipeline commit (spec.md §4.5, Property 5).
func (s *State) Apply(other *State) {
	for k, v := range other.vals {
		s.vals[k] = v
	}
	for k, v := range other.queues {
		s.queues[k] = v
	}
	for k, v := range other.hashes {
		s.hashes[k] = v
	}
	for k, v := range other.zorder {
		s.zorder[k] = v
	}
	for k, v := range other.zscores {
		s.zscores[k] = v
	}
	s.cleanVals()
}

func isAlive(v valEntry) bool {
	if v.expire == nil {
		return true
	}
	return v.expire.After(time.Now())
}

func (s *State) cleanVals() {
	if s.parent != nil {
		return
	}
	for k, v := range s.vals {
		if !isAlive(v) {
			delete(s.vals, k)
		}
	}
}

func (s *State) setValue(key, v string, expire *time.Time) {
	s.vals[key] = valEntry{value: v, expire: expire}
}

func (s *State) getValue(key string) (valEntry, bool) {
	v, ok := s.vals[key]
	if ok {
		if !isAlive(v) {
			s.cleanVals()
			return valEntry{}, false
		}
		return v, true
	}
	if s.parent != nil {
		return s.parent.getValue(key)
	}
	return valEntry{}, false
}

func (s *State) removeValue(key string) bool {
	_, ok := s.getValue(key)
	if !ok {
		return false
	}
	past := time.Now().Add(-time.Second)
	s.setValue(key, "", &past)
	return true
}

func (s *State) getQueue(key string) *list.List {
	q, ok := s.queues[key]
	if ok {
		return q
	}
	q = list.New()
	if s.parent != nil {
		for e := s.parent.getQueue(key).Front(); e != nil; e = e.Next() {
			q.PushBack(e.Value)
		}
	}
	s.queues[key] = q
	return q
}

func (s *State) queueLen(key string) int {
	if q, ok := s.queues[key]; ok {
		return q.Len()
	}
	if s.parent != nil {
		return s.parent.queueLen(key)
	}
	return 0
}

func (s *State) getHash(key string) map[string]string {
	h, ok := s.hashes[key]
	if ok {
		return h
	}
	h = map[string]string{}
	if s.parent != nil {
		for k, v := range s.parent.getHash(key) {
			h[k] = v
		}
	}
	s.hashes[key] = h
	return h
}

func (s *State) getZorder(key string) []string {
	z, ok := s.zorder[key]
	if ok {
		return z
	}
	if s.parent != nil {
		z = append([]string(nil), s.parent.getZorder(key)...)
	}
	s.zorder[key] = z
	return z
}

func (s *State) setZorder(key string, order []string) {
	s.zorder[key] = order
}

func (s *State) zorderLen(key string) int {
	if z, ok := s.zorder[key]; ok {
		return len(z)
	}
	if s.parent != nil {
		return s.parent.zorderLen(key)
	}
	return 0
}

func (s *State) getZscores(key string) map[string]float64 {
	z, ok := s.zscores[key]
	if ok {
		return z
	}
	z = map[string]float64{}
	if s.parent != nil {
		for k, v := range s.parent.getZscores(key) {
			z[k] = v
		}
	}
	s.zscores[key] = z
	return z
}

// existsKey reports whether key has any live value under any collection.
func (s *State) existsKey(key string) bool {
	if _, ok := s.getValue(key); ok {
		return true
	}
	if s.queueLen(key) > 0 {
		return true
	}
	if len(s.getHash(key)) > 0 {
		return true
	}
	if s.zorderLen(key) > 0 {
		return true
	}
	return false
}

// deleteKey removes key from every collection it may live in, reporting
// whether it existed in any of them.
func (s *State) deleteKey(key string) bool {
	existed := s.existsKey(key)
	s.removeValue(key)
	s.queues[key] = list.New()
	s.hashes[key] = map[string]string{}
	s.zorder[key] = nil
	s.zscores[key] = map[string]float64{}
	return existed
}

// sortZorder re-sorts a sorted set's member order by (score, member),
// mirroring the source project's zadd (a simple sort, replaceable by an
// order-statistic tree if profiling ever demands it).
func sortZorder(order []string, scores map[string]float64) {
	sort.SliceStable(order, func(i, j int) bool {
		si, sj := scores[order[i]], scores[order[j]]
		if si != sj {
			return si < sj
		}
		return order[i] < order[j]
	})
}

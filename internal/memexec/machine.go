package memexec

import (
	"sort"
	"time"
)

// SetMode mirrors the source project's RSetMode: whether SET should
// always write, only overwrite an existing key (XX), or only write a
// missing one (NX).
type SetMode int

const (
	SetAlways SetMode = iota
	SetIfExists
	SetIfMissing
)

// SetOpts carries SET's optional modifiers.
type SetOpts struct {
	Mode           SetMode
	ReturnPrevious bool
	ExpireIn       *time.Duration
	KeepTTL        bool
}

// Machine is the command surface above a layered State, grounded on the
// source project's Machine: every method here has a one-to-one
// counterpart there, plus a hash family and Exists/Del/IncrBy supplied
// because spec.md's command set needs them and the source project's
// memory backend never implemented hash commands at all.
type Machine struct {
	state *State
}

// NewMachine wraps a State in the command surface.
func NewMachine(s *State) *Machine { return &Machine{state: s} }

// State returns the underlying layered store.
func (m *Machine) State() *State { return m.state }

// Set stores value under key per opts, returning either the previous
// value (ReturnPrevious) or whether the write happened.
func (m *Machine) Set(key, value string, opts SetOpts) (prevValue *string, wrote bool) {
	prev, hadPrev := m.state.getValue(key)
	var expire *time.Time
	if opts.KeepTTL && hadPrev {
		expire = prev.expire
	} else if opts.ExpireIn != nil {
		t := time.Now().Add(*opts.ExpireIn)
		expire = &t
	}
	doSet := false
	switch opts.Mode {
	case SetAlways:
		doSet = true
	case SetIfExists:
		doSet = hadPrev
	case SetIfMissing:
		doSet = !hadPrev
	}
	if doSet {
		m.state.setValue(key, value, expire)
	}
	if opts.ReturnPrevious {
		if hadPrev {
			return &prev.value, doSet
		}
		return nil, doSet
	}
	return nil, doSet
}

// Get returns the live value at key, or nil if absent/expired.
func (m *Machine) Get(key string) *string {
	v, ok := m.state.getValue(key)
	if !ok {
		return nil
	}
	return &v.value
}

// LPush prepends values (each pushed in turn, so the final order is
// reversed relative to the argument list, matching Redis LPUSH) and
// returns the new length.
func (m *Machine) LPush(key string, values ...string) int {
	q := m.state.getQueue(key)
	for _, v := range values {
		q.PushFront(v)
	}
	return q.Len()
}

// RPush appends values and returns the new length.
func (m *Machine) RPush(key string, values ...string) int {
	q := m.state.getQueue(key)
	for _, v := range values {
		q.PushBack(v)
	}
	return q.Len()
}

// LPop removes and returns up to count elements from the head. A nil
// count pops a single element and returns it directly via single; a
// non-nil count returns a slice, or nil if the queue was already empty.
func (m *Machine) LPop(key string, count *int) (single *string, multi []string, wasEmpty bool) {
	q := m.state.getQueue(key)
	if q.Len() == 0 {
		return nil, nil, true
	}
	if count == nil {
		e := q.Front()
		q.Remove(e)
		s := e.Value.(string)
		return &s, nil, false
	}
	var res []string
	for n := *count; n > 0 && q.Len() > 0; n-- {
		e := q.Front()
		q.Remove(e)
		res = append(res, e.Value.(string))
	}
	return nil, res, false
}

// RPop is LPop's mirror at the tail.
func (m *Machine) RPop(key string, count *int) (single *string, multi []string, wasEmpty bool) {
	q := m.state.getQueue(key)
	if q.Len() == 0 {
		return nil, nil, true
	}
	if count == nil {
		e := q.Back()
		q.Remove(e)
		s := e.Value.(string)
		return &s, nil, false
	}
	var res []string
	for n := *count; n > 0 && q.Len() > 0; n-- {
		e := q.Back()
		q.Remove(e)
		res = append(res, e.Value.(string))
	}
	return nil, res, false
}

// LLen returns the queue length at key.
func (m *Machine) LLen(key string) int { return m.state.queueLen(key) }

// ZAdd inserts or updates member scores, returning the count of newly
// inserted members.
func (m *Machine) ZAdd(key string, mapping map[string]float64) int {
	scores := m.state.getZscores(key)
	order := m.state.getZorder(key)
	count := 0
	for name, score := range mapping {
		if _, exists := scores[name]; !exists {
			order = append(order, name)
			count++
		}
		scores[name] = score
	}
	sortZorder(order, scores)
	m.state.setZorder(key, order)
	return count
}

// ZPopMax pops the count highest-scored members, highest first.
func (m *Machine) ZPopMax(key string, count int) []ScoredMember {
	return m.zpop(key, count, true)
}

// ZPopMin pops the count lowest-scored members, lowest first.
func (m *Machine) ZPopMin(key string, count int) []ScoredMember {
	return m.zpop(key, count, false)
}

// ScoredMember is a (member, score) pair as produced by ZPOPMAX/ZPOPMIN.
type ScoredMember struct {
	Member string
	Score  float64
}

func (m *Machine) zpop(key string, count int, fromMax bool) []ScoredMember {
	scores := m.state.getZscores(key)
	order := m.state.getZorder(key)
	var res []ScoredMember
	for remain := count; remain > 0 && len(order) > 0; remain-- {
		var name string
		if fromMax {
			name = order[len(order)-1]
			order = order[:len(order)-1]
		} else {
			name = order[0]
			order = order[1:]
		}
		score := scores[name]
		delete(scores, name)
		res = append(res, ScoredMember{Member: name, Score: score})
	}
	m.state.setZorder(key, order)
	return res
}

// ZCard returns the member count of the sorted set at key.
func (m *Machine) ZCard(key string) int { return m.state.zorderLen(key) }

// HSet sets fields in the hash at key and returns the count of newly
// created fields. Grounded in the same layered get-or-copy pattern as
// ZAdd/ZCard above (the source project's memory backend never
// implemented hash commands; this fills that gap for spec.md's command
// table).
func (m *Machine) HSet(key string, fields map[string]string) int {
	h := m.state.getHash(key)
	count := 0
	for field, value := range fields {
		if _, exists := h[field]; !exists {
			count++
		}
		h[field] = value
	}
	return count
}

// HGet returns the value of field in the hash at key, or nil if absent.
func (m *Machine) HGet(key, field string) *string {
	h := m.state.getHash(key)
	if v, ok := h[field]; ok {
		return &v
	}
	return nil
}

// HMGet returns the value of each requested field, with nil entries for
// fields absent from the hash.
func (m *Machine) HMGet(key string, fields []string) []*string {
	h := m.state.getHash(key)
	res := make([]*string, len(fields))
	for i, f := range fields {
		if v, ok := h[f]; ok {
			vv := v
			res[i] = &vv
		}
	}
	return res
}

// HDel removes fields from the hash at key, returning the count removed.
func (m *Machine) HDel(key string, fields []string) int {
	h := m.state.getHash(key)
	count := 0
	for _, f := range fields {
		if _, ok := h[f]; ok {
			delete(h, f)
			count++
		}
	}
	return count
}

// HKeys returns the hash's field names in insertion-agnostic sorted
// order (Go maps have no stable order, so this picks a deterministic one
// rather than an arbitrary one).
func (m *Machine) HKeys(key string) []string {
	h := m.state.getHash(key)
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HVals returns the hash's values, ordered to match HKeys.
func (m *Machine) HVals(key string) []string {
	keys := m.HKeys(key)
	h := m.state.getHash(key)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = h[k]
	}
	return vals
}

// HGetAll returns the hash's fields and values as parallel slices,
// ordered to match HKeys.
func (m *Machine) HGetAll(key string) (fields, vals []string) {
	return m.HKeys(key), m.HVals(key)
}

// HLen returns the field count of the hash at key.
func (m *Machine) HLen(key string) int { return len(m.state.getHash(key)) }

// Exists reports whether key holds a live value in any collection.
func (m *Machine) Exists(key string) bool { return m.state.existsKey(key) }

// Del removes key from every collection, reporting whether it existed.
func (m *Machine) Del(key string) bool { return m.state.deleteKey(key) }

// IncrBy adds delta to the numeric string stored at key (defaulting to
// 0 if absent) and returns the new value. Mirrors Redis INCRBY; the Lua
// backend rewrites this to INCRBYFLOAT-style float math per
// spec.md's adjustment-patch table, so both backends must agree on
// float vs. int formatting — see internal/luascript/patches.go.
func (m *Machine) IncrBy(key string, delta float64) (float64, error) {
	cur := 0.0
	if v, ok := m.state.getValue(key); ok {
		n, err := parseFloatStrict(v.value)
		if err != nil {
			return 0, &TypeMismatchError{Detail: "INCRBY on non-numeric value at " + key}
		}
		cur = n
	}
	next := cur + delta
	m.state.setValue(key, formatNumber(next), nil)
	return next, nil
}

// HIncrBy adds delta to the numeric string stored at field of the hash
// at key (defaulting to 0 if absent) and returns the new value.
func (m *Machine) HIncrBy(key, field string, delta float64) (float64, error) {
	h := m.state.getHash(key)
	cur := 0.0
	if s, ok := h[field]; ok {
		n, err := parseFloatStrict(s)
		if err != nil {
			return 0, &TypeMismatchError{Detail: "HINCRBY on non-numeric field " + field}
		}
		cur = n
	}
	next := cur + delta
	h[field] = formatNumber(next)
	return next, nil
}

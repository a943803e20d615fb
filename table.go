package subtle

import "github.com/gholt/subtlevm/internal/pow2"

// maxLoad is the load factor above which Set grows the table before
// inserting, per spec.md §4.2.
const maxLoad = 0.75

// Entry is one (key, value) slot. Three states, per spec.md §3:
//
//	empty:     key.IsUndefined() && value.IsNil()
//	tombstone: key.IsUndefined() && value.IsTrue()
//	live:      otherwise
type Entry struct {
	Key   Value
	Value Value
}

// Table is the open-addressed hash table with tombstones used for
// object slots, globals, and string interning (spec.md §4.2). Its zero
// value is ready to use: an empty table with capacity 0.
type Table struct {
	entries []Entry
	count   int // live + tombstone entries
	valid   int // live entries only
}

// Capacity reports the table's current entry array size: 0, or a power
// of two >= 8.
func (t *Table) Capacity() int { return len(t.entries) }

// Count reports live + tombstone entries.
func (t *Table) Count() int { return t.count }

// Valid reports live entries only.
func (t *Table) Valid() int { return t.valid }

func emptyEntry(e *Entry) bool { return e.Key.IsUndefined() && e.Value.IsNil() }
func tombstoneEntry(e *Entry) bool { return e.Key.IsUndefined() && !e.Value.IsNil() }

// findEntry probes from hash(key) mod capacity, stepping by one slot,
// skipping tombstones, and terminates on the first empty slot or an
// exact key match. Entries must be non-empty (capacity > 0).
func findEntry(entries []Entry, key Value) int {
	capacity := len(entries)
	index := int(Hash(key)) & (capacity - 1)
	tombstone := -1
	for {
		e := &entries[index]
		if e.Key.IsUndefined() {
			if e.Value.IsNil() {
				// Empty slot: prefer a tombstone seen earlier so probe
				// distances stay bounded, per spec.md §4.2's tie-break.
				if tombstone != -1 {
					return tombstone
				}
				return index
			}
			if tombstone == -1 {
				tombstone = index
			}
		} else if Equal(e.Key, key) {
			return index
		}
		index = (index + 1) & (capacity - 1)
	}
}

// Get probes for key and reports whether it is present.
func (t *Table) Get(key Value) (Value, bool) {
	if t.count == 0 {
		return Nil, false
	}
	i := findEntry(t.entries, key)
	e := &t.entries[i]
	if e.Key.IsUndefined() {
		return Nil, false
	}
	return e.Value, true
}

// Set inserts or overwrites key's value, growing the table first if the
// load factor would exceed maxLoad. It reports whether key was newly
// inserted (as opposed to overwriting an existing live entry).
func (t *Table) Set(key, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow(pow2.Grow(len(t.entries)))
	}
	i := findEntry(t.entries, key)
	e := &t.entries[i]
	isNew := e.Key.IsUndefined()
	// count increments only when an empty slot (not a tombstone) is
	// consumed, per spec.md §4.2.
	if isNew && e.Value.IsNil() {
		t.count++
	}
	if isNew {
		t.valid++
	}
	e.Key = key
	e.Value = value
	return isNew
}

// Delete removes key, leaving a tombstone behind so later probes that
// stepped over this slot still terminate correctly. It reports whether
// key existed before the delete.
func (t *Table) Delete(key Value) bool {
	if t.count == 0 {
		return false
	}
	i := findEntry(t.entries, key)
	e := &t.entries[i]
	if e.Key.IsUndefined() {
		return false
	}
	e.Key = Undefined
	e.Value = True
	t.valid--
	return true
}

// FindString is the interning specialization: it probes using a
// precomputed hash and returns the interned *ObjString matching the
// given bytes, or nil. It must terminate at the first empty (not
// tombstone) slot to avoid missing live entries, per spec.md §4.2.
func (t *Table) FindString(data []byte, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) & (capacity - 1)
	for {
		e := &t.entries[index]
		if e.Key.IsUndefined() {
			if e.Value.IsNil() {
				return nil
			}
		} else if s := e.Key.AsString(); s != nil {
			if s.hash == hash && string(s.chars) == string(data) {
				return s
			}
		}
		index = (index + 1) & (capacity - 1)
	}
}

// grow allocates a new entries array of the given capacity, rehashes all
// live entries into it (tombstones are dropped), and replaces the old
// array. Rehashing never triggers further growth: capacity is fixed for
// the duration, and count is recomputed to equal valid afterward.
func (t *Table) grow(capacity int) {
	next := make([]Entry, capacity)
	for i := range next {
		next[i] = Entry{Key: Undefined, Value: Nil}
	}
	newCount := 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key.IsUndefined() {
			continue
		}
		dst := findEntry(next, e.Key)
		next[dst].Key = e.Key
		next[dst].Value = e.Value
		newCount++
	}
	t.entries = next
	t.count = newCount
	// t.valid is unaffected: growth drops only tombstones, never live
	// entries, and newCount == t.valid by construction.
}

// Each calls fn for every live entry. fn must not mutate the table.
func (t *Table) Each(fn func(key, value Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key.IsUndefined() {
			continue
		}
		fn(e.Key, e.Value)
	}
}

package nmvalue

// StringTable is the ordered, interned sequence of string literals
// referenced by index from opcodes (§3). It is the sole owner of its
// strings: callers never get mutable access, only an index or a copy of the
// interned value (§9 "keep interning by value equality; do not expose
// mutable access").
type StringTable struct {
	strings []string
	index   map[string]uint32
}

func NewStringTable() *StringTable {
	return &StringTable{index: make(map[string]uint32)}
}

// Add interns s, returning the existing index if s is already present
// (first occurrence wins, reused by index — P3), else appending it.
func (t *StringTable) Add(s string) uint32 {
	if idx, ok := t.index[s]; ok {
		return idx
	}
	idx := uint32(len(t.strings))
	t.strings = append(t.strings, s)
	t.index[s] = idx
	return idx
}

// Get returns the string at idx and whether idx was in range. Every opcode
// that references a string must have operand < len(table); out-of-range is
// the VM's responsibility to treat as fatal (§3), not this accessor's.
func (t *StringTable) Get(idx uint32) (string, bool) {
	if int(idx) >= len(t.strings) {
		return "", false
	}
	return t.strings[idx], true
}

func (t *StringTable) Len() int { return len(t.strings) }

// Strings returns a copy of the interned strings in insertion order.
func (t *StringTable) Strings() []string {
	out := make([]string, len(t.strings))
	copy(out, t.strings)
	return out
}

// NewStringTableFrom rebuilds a StringTable from an already-ordered slice,
// used when loading a serialized CompiledScript (the table is immutable
// once loaded — §3 CompiledScript lifecycle).
func NewStringTableFrom(strs []string) *StringTable {
	t := &StringTable{strings: strs, index: make(map[string]uint32, len(strs))}
	for i, s := range strs {
		if _, ok := t.index[s]; !ok {
			t.index[s] = uint32(i)
		}
	}
	return t
}

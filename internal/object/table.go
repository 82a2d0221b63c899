package object

// Field is one table slot: an empty Name marks an unused open-addressed
// slot (never true in linear mode, where fields is exactly the stored
// entries with no holes).
type Field struct {
	Name  string
	Value *Object
}

// Table is the field table of spec.md §3/§4.6: a small table (≤8 entries)
// is a plain insertion-ordered slice scanned linearly; past that it
// switches to open addressing with a djb2-derived probe sequence, guarded
// by a 4x32-bit bloom filter so a table that can't possibly contain key is
// rejected without ever touching the probe sequence.
type Table struct {
	fields []Field
	stored int
	hashed bool
	bloom  [4]uint32
}

const linearScanLimit = 8

// djb2 is the classic Bernstein hash, per spec.md §4.6/§3.
func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// bloomBits derives 3 bit positions (0..127) from a key hash for the 4x32
// (128-bit) bloom filter.
func bloomBits(hash uint32) [3]uint32 {
	h1 := hash
	h2 := (hash >> 16) | (hash << 16)
	h3 := hash*2654435761 + 1
	return [3]uint32{h1 % 128, h2 % 128, h3 % 128}
}

func bloomAdd(b *[4]uint32, hash uint32) {
	for _, bit := range bloomBits(hash) {
		b[bit/32] |= 1 << (bit % 32)
	}
}

func bloomMayContain(b [4]uint32, hash uint32) bool {
	for _, bit := range bloomBits(hash) {
		if b[bit/32]&(1<<(bit%32)) == 0 {
			return false
		}
	}
	return true
}

// find returns the value stored under key in this table only (no parent
// walk — that is Lookup's job).
func (t *Table) find(key string) (*Object, bool) {
	if t.stored == 0 {
		return nil, false
	}
	if !t.hashed {
		for i := range t.fields {
			if t.fields[i].Name == key {
				return t.fields[i].Value, true
			}
		}
		return nil, false
	}
	hash := djb2(key)
	if !bloomMayContain(t.bloom, hash) {
		return nil, false
	}
	mask := uint32(len(t.fields) - 1)
	n := uint32(len(t.fields))
	for i := uint32(0); i < n; i++ {
		idx := (hash + i) & mask
		f := &t.fields[idx]
		if f.Name == "" {
			return nil, false
		}
		if f.Name == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (t *Table) indexOf(key string) (int, bool) {
	if !t.hashed {
		for i := range t.fields {
			if t.fields[i].Name == key {
				return i, true
			}
		}
		return 0, false
	}
	hash := djb2(key)
	mask := uint32(len(t.fields) - 1)
	n := uint32(len(t.fields))
	for i := uint32(0); i < n; i++ {
		idx := (hash + i) & mask
		f := &t.fields[idx]
		if f.Name == "" {
			return 0, false
		}
		if f.Name == key {
			return int(idx), true
		}
	}
	return 0, false
}

// set writes key (adding it if absent), growing the table per spec.md
// §4.6's "grows by doubling when fill factor ≥ 70%" rule.
func (t *Table) set(key string, v *Object) {
	if !t.hashed {
		for i := range t.fields {
			if t.fields[i].Name == key {
				t.fields[i].Value = v
				return
			}
		}
		if len(t.fields) < linearScanLimit {
			t.fields = append(t.fields, Field{Name: key, Value: v})
			t.stored++
			return
		}
		t.convertToHashed()
	}
	hash := djb2(key)
	if cell, ok := t.probeFor(hash, key); ok {
		cell.Value = v
		return
	}
	if (t.stored+1)*100/len(t.fields) >= 70 {
		t.grow()
	}
	mask := uint32(len(t.fields) - 1)
	n := uint32(len(t.fields))
	for i := uint32(0); i < n; i++ {
		idx := (hash + i) & mask
		f := &t.fields[idx]
		if f.Name == "" {
			f.Name = key
			f.Value = v
			t.stored++
			bloomAdd(&t.bloom, hash)
			return
		}
	}
	// Unreachable: grow() always leaves room for at least one more insert.
	panic("object: table full after grow")
}

// probeFor returns the existing cell for key, if present, in hashed mode.
func (t *Table) probeFor(hash uint32, key string) (*Field, bool) {
	if !bloomMayContain(t.bloom, hash) {
		return nil, false
	}
	mask := uint32(len(t.fields) - 1)
	n := uint32(len(t.fields))
	for i := uint32(0); i < n; i++ {
		idx := (hash + i) & mask
		f := &t.fields[idx]
		if f.Name == "" {
			return nil, false
		}
		if f.Name == key {
			return f, true
		}
	}
	return nil, false
}

func (t *Table) convertToHashed() {
	old := t.fields
	t.fields = make([]Field, 16)
	t.stored = 0
	t.bloom = [4]uint32{}
	t.hashed = true
	for _, f := range old {
		t.insertHashedNoGrow(f.Name, f.Value)
	}
}

func (t *Table) grow() {
	old := t.fields
	t.fields = make([]Field, len(old)*2)
	t.stored = 0
	t.bloom = [4]uint32{}
	for _, f := range old {
		if f.Name != "" {
			t.insertHashedNoGrow(f.Name, f.Value)
		}
	}
}

// insertHashedNoGrow inserts into the current (already sized) hashed array;
// used only while rehashing, where the destination is known to have room.
func (t *Table) insertHashedNoGrow(key string, v *Object) {
	hash := djb2(key)
	mask := uint32(len(t.fields) - 1)
	n := uint32(len(t.fields))
	for i := uint32(0); i < n; i++ {
		idx := (hash + i) & mask
		f := &t.fields[idx]
		if f.Name == "" {
			f.Name = key
			f.Value = v
			t.stored++
			bloomAdd(&t.bloom, hash)
			return
		}
	}
	panic("object: rehash found no empty slot")
}

func (t *Table) forEach(fn func(key string, v *Object)) {
	for _, f := range t.fields {
		if f.Name != "" {
			fn(f.Name, f.Value)
		}
	}
}

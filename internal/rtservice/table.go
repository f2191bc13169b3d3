// Package rtservice holds the per-type facts the runtime keeps out of the
// descriptor header: rare flags, nullable layout and the shared array base.
package rtservice

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"aotrt/internal/typedesc"
)

// Table is a read-mostly side table keyed by descriptor address. It
// implements typedesc.Services.
type Table struct {
	mu        sync.RWMutex
	rare      map[typedesc.Addr]typedesc.RareFlags
	nullable  map[typedesc.Addr]typedesc.NullableInfo
	arrayBase typedesc.Addr
}

var _ typedesc.Services = (*Table)(nil)

// New returns an empty table.
func New() *Table {
	return &Table{
		rare:     make(map[typedesc.Addr]typedesc.RareFlags),
		nullable: make(map[typedesc.Addr]typedesc.NullableInfo),
	}
}

// SetRareFlags records the rare flags of the descriptor at a. Zero flags
// remove the entry.
func (t *Table) SetRareFlags(a typedesc.Addr, flags typedesc.RareFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if flags == 0 {
		delete(t.rare, a)
		return
	}
	t.rare[a] = flags
}

// SetNullable records that a wraps info.Type at info.ValueOffset and marks
// it nullable.
func (t *Table) SetNullable(a typedesc.Addr, info typedesc.NullableInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nullable[a] = info
	t.rare[a] |= typedesc.RareIsNullable
}

// SetArrayBaseType records the common base of all array types.
func (t *Table) SetArrayBaseType(a typedesc.Addr) {
	t.mu.Lock()
	t.arrayBase = a
	t.mu.Unlock()
}

func (t *Table) RareFlags(a typedesc.Addr) (typedesc.RareFlags, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rare[a]
	return r, ok
}

func (t *Table) ArrayBaseType(typedesc.Addr) typedesc.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.arrayBase
}

func (t *Table) Nullable(a typedesc.Addr) (typedesc.NullableInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nullable[a]
	return n, ok
}

// Len reports how many descriptors carry rare flags.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rare)
}

// Scan loads rare flags from the optional fields of every named descriptor
// in space. Entries already present are merged, not replaced.
func (t *Table) Scan(space *typedesc.Space) error {
	syms := space.Symbols()
	names := make([]string, 0, len(syms))
	for name := range syms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := space.Descriptor(syms[name])
		if !d.HasOptionalFields() {
			continue
		}
		opt, err := d.OptionalFields()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if opt.RareFlags == 0 {
			continue
		}
		t.mu.Lock()
		t.rare[d.Addr()] |= opt.RareFlags
		t.mu.Unlock()
	}
	return nil
}

type wireEntry struct {
	Addr         uint64 `msgpack:"a"`
	Rare         uint32 `msgpack:"r,omitempty"`
	NullableType uint64 `msgpack:"t,omitempty"`
	ValueOffset  uint8  `msgpack:"o,omitempty"`
	HasNullable  bool   `msgpack:"n,omitempty"`
}

type wireTable struct {
	ArrayBase uint64      `msgpack:"b,omitempty"`
	Entries   []wireEntry `msgpack:"e"`
}

// Encode serializes the table with msgpack. Entries are sorted by address
// so equal tables encode identically.
func (t *Table) Encode() ([]byte, error) {
	t.mu.RLock()
	w := wireTable{ArrayBase: uint64(t.arrayBase)}
	seen := make(map[typedesc.Addr]bool, len(t.rare)+len(t.nullable))
	add := func(a typedesc.Addr) {
		if seen[a] {
			return
		}
		seen[a] = true
		e := wireEntry{Addr: uint64(a), Rare: uint32(t.rare[a])}
		if n, ok := t.nullable[a]; ok {
			e.HasNullable = true
			e.NullableType = uint64(n.Type)
			e.ValueOffset = n.ValueOffset
		}
		w.Entries = append(w.Entries, e)
	}
	for a := range t.rare {
		add(a)
	}
	for a := range t.nullable {
		add(a)
	}
	t.mu.RUnlock()

	sort.Slice(w.Entries, func(i, j int) bool { return w.Entries[i].Addr < w.Entries[j].Addr })
	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode runtime table: %w", err)
	}
	return data, nil
}

// Decode rebuilds a table produced by Encode.
func Decode(data []byte) (*Table, error) {
	var w wireTable
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode runtime table: %w", err)
	}
	t := New()
	t.arrayBase = typedesc.Addr(w.ArrayBase)
	for _, e := range w.Entries {
		a := typedesc.Addr(e.Addr)
		if e.Rare != 0 {
			t.rare[a] = typedesc.RareFlags(e.Rare)
		}
		if e.HasNullable {
			t.nullable[a] = typedesc.NullableInfo{Type: typedesc.Addr(e.NullableType), ValueOffset: e.ValueOffset}
		}
	}
	return t, nil
}

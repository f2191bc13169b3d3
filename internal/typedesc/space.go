package typedesc

import (
	"encoding/binary"
	"fmt"
	"sort"

	"aotrt/internal/contract"
	"aotrt/internal/layout"
)

// Services is the runtime capability consulted for data that is not stored
// in the descriptor header. A missing entry means "unset", never an error.
type Services interface {
	// RareFlags returns the out-of-band flags of the descriptor at a.
	RareFlags(a Addr) (RareFlags, bool)
	// ArrayBaseType returns the runtime-synthesized base of array types.
	ArrayBaseType(array Addr) Addr
	// Nullable returns the wrapped type of a nullable wrapper.
	Nullable(a Addr) (NullableInfo, bool)
}

// NullableInfo describes the value embedded in a nullable wrapper.
type NullableInfo struct {
	Type        Addr
	ValueOffset uint8
}

// ModuleImage is the serializable form of one module's read-only data.
type ModuleImage struct {
	Name    string          `msgpack:"name"`
	Base    Addr            `msgpack:"base"`
	Data    []byte          `msgpack:"data"`
	Symbols map[string]Addr `msgpack:"symbols"`
}

// Space is a frozen set of module images. It is never mutated after
// construction and may be read from any number of goroutines.
type Space struct {
	target   layout.Target
	order    binary.ByteOrder
	modules  []*ModuleImage // sorted by Base
	services Services
}

// Load builds a Space from module images, e.g. ones read back from the
// image cache. Images must not overlap.
func Load(target layout.Target, images []ModuleImage, services Services) (*Space, error) {
	mods := make([]*ModuleImage, 0, len(images))
	for i := range images {
		img := images[i]
		if img.Base == NoAddr {
			return nil, fmt.Errorf("module %q: zero base address", img.Name)
		}
		mods = append(mods, &img)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Base < mods[j].Base })
	for i := 1; i < len(mods); i++ {
		prev := mods[i-1]
		if prev.Base+Addr(len(prev.Data)) > mods[i].Base {
			return nil, fmt.Errorf("modules %q and %q overlap", prev.Name, mods[i].Name)
		}
	}
	return &Space{
		target:   target,
		order:    target.ByteOrder(),
		modules:  mods,
		services: services,
	}, nil
}

// WithServices returns a copy of the space bound to other runtime services.
// The images are shared.
func (s *Space) WithServices(svc Services) *Space {
	cp := *s
	cp.services = svc
	return &cp
}

// Target returns the target the images were laid out for.
func (s *Space) Target() layout.Target { return s.target }

// Images returns the module images in address order.
func (s *Space) Images() []ModuleImage {
	out := make([]ModuleImage, len(s.modules))
	for i, m := range s.modules {
		out[i] = *m
	}
	return out
}

// Lookup finds a named descriptor in a module.
func (s *Space) Lookup(module, name string) (Descriptor, bool) {
	for _, m := range s.modules {
		if m.Name != module {
			continue
		}
		a, ok := m.Symbols[name]
		if !ok {
			return Descriptor{}, false
		}
		return s.Descriptor(a), true
	}
	return Descriptor{}, false
}

// Symbols returns every named descriptor, qualified as "module:name".
func (s *Space) Symbols() map[string]Addr {
	out := make(map[string]Addr)
	for _, m := range s.modules {
		for name, a := range m.Symbols {
			out[m.Name+":"+name] = a
		}
	}
	return out
}

// ModuleOf returns the name of the module containing a.
func (s *Space) ModuleOf(a Addr) (string, bool) {
	m := s.find(a)
	if m == nil {
		return "", false
	}
	return m.Name, true
}

// NameOf returns the symbol name of the descriptor at a, if it has one.
func (s *Space) NameOf(a Addr) (string, bool) {
	m := s.find(a)
	if m == nil {
		return "", false
	}
	for name, sa := range m.Symbols {
		if sa == a {
			return name, true
		}
	}
	return "", false
}

// Descriptor returns the descriptor view at a. The nil address yields the
// nil descriptor.
func (s *Space) Descriptor(a Addr) Descriptor {
	if a != NoAddr {
		contract.Assert(s.find(a) != nil, "Space.Descriptor", "address %v is outside every module", a)
	}
	return Descriptor{space: s, addr: a}
}

func (s *Space) find(a Addr) *ModuleImage {
	i := sort.Search(len(s.modules), func(i int) bool { return s.modules[i].Base > a }) - 1
	if i < 0 {
		return nil
	}
	m := s.modules[i]
	if a >= m.Base+Addr(len(m.Data)) {
		return nil
	}
	return m
}

func (s *Space) bytes(a Addr, n int) []byte {
	m := s.find(a)
	contract.Assert(m != nil, "Space.read", "address %v is outside every module", a)
	off := int(a - m.Base)
	contract.Assert(off+n <= len(m.Data), "Space.read", "read of %d bytes at %v crosses the end of %q", n, a, m.Name)
	return m.Data[off : off+n]
}

func (s *Space) u16(a Addr) uint16 { return s.order.Uint16(s.bytes(a, 2)) }
func (s *Space) u32(a Addr) uint32 { return s.order.Uint32(s.bytes(a, 4)) }

func (s *Space) ptr(a Addr) Addr {
	if s.target.PtrSize == 4 {
		return Addr(s.order.Uint32(s.bytes(a, 4)))
	}
	return Addr(s.order.Uint64(s.bytes(a, 8)))
}

func (s *Space) ptrSize() int {
	if s.target.PtrSize <= 0 {
		return 8
	}
	return s.target.PtrSize
}

func (s *Space) rareFlags(a Addr) RareFlags {
	if s.services == nil {
		return 0
	}
	f, ok := s.services.RareFlags(a)
	if !ok {
		return 0
	}
	return f
}

func (s *Space) tail(a Addr) []byte {
	m := s.find(a)
	contract.Assert(m != nil, "Space.read", "address %v is outside every module", a)
	return m.Data[int(a-m.Base):]
}

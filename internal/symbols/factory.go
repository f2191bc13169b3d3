// Package symbols hands out linkable entry-point references for methods.
package symbols

import (
	"sort"
	"sync"

	"aotrt/internal/typedesc"
	"aotrt/internal/typesys"
)

// CodeBase is where entry points are placed. It lies below the first
// module region so entry points never alias descriptor addresses.
const CodeBase typedesc.Addr = 0x0800_0000

// entryStride keeps every entry point 16-byte aligned.
const entryStride = 16

// Namer renders method names for symbol output.
type Namer interface {
	MethodName(m typesys.MethodID) string
}

// MethodNode is the entry point of a method, or of its unboxing stub.
// Nodes are interned per factory; compare them by identity.
type MethodNode struct {
	Method   typesys.MethodID
	Unboxing bool
	name     string
	addr     typedesc.Addr
}

// Name returns the mangled symbol name.
func (n *MethodNode) Name() string {
	if n == nil {
		return "<none>"
	}
	return n.name
}

// Addr returns the entry point address.
func (n *MethodNode) Addr() typedesc.Addr {
	if n == nil {
		return typedesc.NoAddr
	}
	return n.addr
}

func (n *MethodNode) String() string { return n.Name() }

type nodeKey struct {
	method   typesys.MethodID
	unboxing bool
}

// Factory interns method nodes. It is safe for concurrent use.
type Factory struct {
	namer Namer
	mu    sync.Mutex
	nodes map[nodeKey]*MethodNode
}

// NewFactory creates a factory naming methods through namer.
func NewFactory(namer Namer) *Factory {
	return &Factory{
		namer: namer,
		nodes: make(map[nodeKey]*MethodNode),
	}
}

// MethodEntrypoint returns the node for m, or for its unboxing stub.
func (f *Factory) MethodEntrypoint(m typesys.MethodID, unboxing bool) *MethodNode {
	if m == typesys.NoMethodID {
		panic("symbols: entry point of invalid method")
	}
	key := nodeKey{method: m, unboxing: unboxing}
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[key]; ok {
		return n
	}
	name := f.namer.MethodName(m)
	if unboxing {
		name = "unbox_" + name
	}
	slot := typedesc.Addr(m) * 2
	if unboxing {
		slot++
	}
	n := &MethodNode{
		Method:   m,
		Unboxing: unboxing,
		name:     name,
		addr:     CodeBase + slot*entryStride,
	}
	f.nodes[key] = n
	return n
}

// Nodes returns every node created so far, ordered by address.
func (f *Factory) Nodes() []*MethodNode {
	f.mu.Lock()
	out := make([]*MethodNode, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}

// Resolve maps an entry point address back to its node.
func (f *Factory) Resolve(a typedesc.Addr) (*MethodNode, bool) {
	if a < CodeBase || (a-CodeBase)%entryStride != 0 {
		return nil, false
	}
	slot := (a - CodeBase) / entryStride
	key := nodeKey{method: typesys.MethodID(slot / 2), unboxing: slot%2 == 1}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[key]
	return n, ok
}

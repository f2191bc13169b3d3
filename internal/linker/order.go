package linker

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"aotrt/internal/typesys"
)

// orderTypes returns every type after its base type and, for
// instantiations, after its generic definition. Ties are broken by TypeID
// so the emitted layout is reproducible.
func orderTypes(u *typesys.Universe) ([]typesys.TypeID, error) {
	g := simple.NewDirectedGraph()
	ids := u.Types()
	for _, id := range ids {
		g.AddNode(simple.Node(id))
	}
	for _, id := range ids {
		t := u.MustType(id)
		if t.Base != typesys.NoTypeID {
			g.SetEdge(g.NewEdge(simple.Node(t.Base), simple.Node(id)))
		}
		if t.Definition != typesys.NoTypeID {
			g.SetEdge(g.NewEdge(simple.Node(t.Definition), simple.Node(id)))
		}
	}

	sorted, err := topo.SortStabilized(g, byID)
	if err != nil {
		var cyc topo.Unorderable
		if errors.As(err, &cyc) {
			return nil, cycleError(u, cyc)
		}
		return nil, err
	}
	out := make([]typesys.TypeID, len(sorted))
	for i, n := range sorted {
		out[i] = typesys.TypeID(n.ID())
	}
	return out, nil
}

func byID(nodes []graph.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}

func cycleError(u *typesys.Universe, cyc topo.Unorderable) error {
	groups := make([]string, 0, len(cyc))
	for _, component := range cyc {
		names := make([]string, 0, len(component))
		for _, n := range component {
			names = append(names, u.MustType(typesys.TypeID(n.ID())).Name)
		}
		sort.Strings(names)
		groups = append(groups, "{"+strings.Join(names, ", ")+"}")
	}
	sort.Strings(groups)
	return fmt.Errorf("%w: %s", ErrBaseCycle, strings.Join(groups, " "))
}

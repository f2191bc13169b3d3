package delegate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"aotrt/internal/contract"
	"aotrt/internal/trace"
	"aotrt/internal/typesys"
)

// Request names one (delegate type, target method) pair.
type Request struct {
	DelegateType typesys.TypeID
	Target       typesys.MethodID
}

func (r Request) key() string { return fmt.Sprintf("%d/%d", r.DelegateType, r.Target) }

// Result is the outcome of one request. Err is set for unsupported shapes;
// contract violations abort the whole batch instead.
type Result struct {
	Request Request
	Info    CreationInfo
	Err     error
}

// Cache memoizes creation records. Concurrent requests for the same pair
// compute the record once.
type Cache struct {
	ts    TypeSystem
	nodes SymbolFactory
	group singleflight.Group
	done  sync.Map // key -> Result
}

// NewCache returns an empty cache over ts and nodes.
func NewCache(ts TypeSystem, nodes SymbolFactory) *Cache {
	return &Cache{ts: ts, nodes: nodes}
}

// Get returns the record for req, computing it on first use.
func (c *Cache) Get(req Request) (CreationInfo, error) {
	key := req.key()
	if v, ok := c.done.Load(key); ok {
		r := v.(Result)
		return r.Info, r.Err
	}
	// contract.Recover turns a violation into err inside the flight, so
	// waiting callers share it as an error; it is re-raised below.
	v, err, _ := c.group.Do(key, func() (res any, err error) {
		defer contract.Recover(&err)
		if v, ok := c.done.Load(key); ok {
			return v, nil
		}
		info, cerr := Create(c.ts, c.nodes, req.DelegateType, req.Target)
		r := Result{Request: req, Info: info, Err: cerr}
		c.done.Store(key, r)
		return r, nil
	})
	if err != nil {
		var viol *contract.Violation
		if errors.As(err, &viol) {
			panic(viol)
		}
		return CreationInfo{}, err
	}
	r := v.(Result)
	return r.Info, r.Err
}

// Len reports how many pairs have been computed.
func (c *Cache) Len() int {
	n := 0
	c.done.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// CreateAll resolves every request with at most jobs workers (jobs <= 0
// means unbounded) and returns results in request order.
func (c *Cache) CreateAll(ctx context.Context, reqs []Request, jobs int) ([]Result, error) {
	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() (err error) {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer contract.Recover(&err)
			_, span := trace.StartSpan(gctx, trace.ScopeType, "delegate:"+req.key())
			info, cerr := c.Get(req)
			results[i] = Result{Request: req, Info: info, Err: cerr}
			if cerr != nil {
				span.End(cerr.Error())
			} else {
				span.End(info.Kind().String())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

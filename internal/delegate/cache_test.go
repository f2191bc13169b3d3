package delegate

import (
	"context"
	"errors"
	"testing"

	"aotrt/internal/contract"
)

func TestCacheMemoizes(t *testing.T) {
	w := newWorld(t)
	c := NewCache(w.u, w.nodes)
	req := Request{DelegateType: w.action, Target: w.pointMethod}
	a, err := c.Get(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := c.Get(req)
	if a != b || c.Len() != 1 {
		t.Fatal("second lookup must hit the cache")
	}
	if _, err := c.Get(Request{DelegateType: w.funcObject, Target: w.fooMethod}); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if _, err := c.Get(Request{DelegateType: w.funcObject, Target: w.fooMethod}); !errors.Is(err, ErrNotImplemented) {
		t.Fatal("errors are memoized too")
	}
}

func TestCacheRaisesViolations(t *testing.T) {
	w := newWorld(t)
	c := NewCache(w.u, w.nodes)
	defer func() {
		if _, ok := recover().(*contract.Violation); !ok {
			t.Fatal("expected the violation to surface unchanged")
		}
	}()
	_, _ = c.Get(Request{DelegateType: w.action, Target: w.staticThree})
}

func TestCreateAllKeepsOrder(t *testing.T) {
	w := newWorld(t)
	c := NewCache(w.u, w.nodes)
	reqs := []Request{
		{DelegateType: w.action, Target: w.staticNone},
		{DelegateType: w.action, Target: w.staticOne},
		{DelegateType: w.action, Target: w.pointMethod},
		{DelegateType: w.funcObject, Target: w.fooMethod},
		{DelegateType: w.action, Target: w.staticNone},
	}
	results, err := c.CreateAll(context.Background(), reqs, 2)
	if err != nil {
		t.Fatalf("create all: %v", err)
	}
	want := []Kind{KindOpenStatic, KindClosedStatic, KindClosedInstance, KindInvalid, KindOpenStatic}
	for i, r := range results {
		if r.Request != reqs[i] {
			t.Fatalf("result %d out of order", i)
		}
		if r.Info.Kind() != want[i] {
			t.Errorf("result %d: kind %v, want %v", i, r.Info.Kind(), want[i])
		}
	}
	if !errors.Is(results[3].Err, ErrNotImplemented) {
		t.Fatalf("result 3: %v", results[3].Err)
	}
	if !results[0].Info.Equal(results[4].Info) {
		t.Fatal("duplicate requests must yield equal records")
	}
}

func TestCreateAllReportsViolation(t *testing.T) {
	w := newWorld(t)
	c := NewCache(w.u, w.nodes)
	reqs := []Request{
		{DelegateType: w.action, Target: w.staticNone},
		{DelegateType: w.action, Target: w.staticThree},
	}
	_, err := c.CreateAll(context.Background(), reqs, 0)
	var v *contract.Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected a violation error, got %v", err)
	}
}

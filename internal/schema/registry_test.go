package schema

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_AddRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	a, b := String(), String()
	if err := reg.Add(a, Meta{ID: "Token"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.Add(a, Meta{ID: "Token", Description: "again"}); err != nil {
		t.Fatalf("re-adding the same definition should update metadata: %v", err)
	}
	err := reg.Add(b, Meta{ID: "Token"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one registration, got %d", reg.Len())
	}
	if meta, _ := reg.Get(a); meta.Description != "again" {
		t.Fatalf("metadata not replaced: %+v", meta)
	}
}

func TestRegistry_IdentityNotStructure(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	a := Object(Prop("id", String()))
	b := Object(Prop("id", String()))
	reg.MustAdd(a, Meta{ID: "A"})
	if _, ok := reg.Get(b); ok {
		t.Fatalf("structurally equal definition must not share registration")
	}
	if reg.ID(a.Describe("copy")) != "" {
		t.Fatalf("derived definitions are distinct entities")
	}
}

func TestRegistry_RemoveAndOrder(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	a, b, c := String(), Number(), Boolean()
	reg.MustAdd(a, Meta{ID: "A"})
	reg.MustAdd(b, Meta{ID: "B"})
	reg.MustAdd(c, Meta{ID: "C"})
	reg.Remove(b)

	types := reg.Types()
	if len(types) != 2 || types[0] != a || types[1] != c {
		t.Fatalf("unexpected order after remove: %v", types)
	}
	if _, ok := reg.Lookup("B"); ok {
		t.Fatalf("removed id should be free")
	}
	if err := reg.Add(Number(), Meta{ID: "B"}); err != nil {
		t.Fatalf("re-using a freed id: %v", err)
	}
}

func TestRegistry_LazyLookup(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	target := String()
	reg.MustAdd(target, Meta{ID: "Name"})
	lazy := Lazy(func() *Type { return target })
	if reg.ID(lazy) != "Name" {
		t.Fatalf("lazy definition should resolve to its registered target")
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	t.Parallel()
	var reg *Registry
	if _, ok := reg.Get(String()); ok {
		t.Fatalf("nil registry has no entries")
	}
	if reg.Len() != 0 || reg.Types() != nil {
		t.Fatalf("nil registry should be empty")
	}
}

func TestRegistry_ConcurrentAddAndRead(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			def := String()
			id := fmt.Sprintf("T%d", i)
			if err := reg.Add(def, Meta{ID: id}); err != nil {
				t.Errorf("add %s: %v", id, err)
				return
			}
			if got, ok := reg.Lookup(id); !ok || got != def {
				t.Errorf("lookup %s after add", id)
			}
			_ = reg.Types()
		}(i)
	}
	wg.Wait()
	if reg.Len() != 16 {
		t.Fatalf("expected 16 registrations, got %d", reg.Len())
	}
}

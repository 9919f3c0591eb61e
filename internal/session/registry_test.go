package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if got := r.Len(); got != 0 {
		t.Errorf("new registry has %d entries, want 0", got)
	}
}

func TestGetMissing(t *testing.T) {
	r := NewRegistry()
	client, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get for missing name returned ok=true")
	}
	if client != nil {
		t.Error("Get for missing name returned non-nil client")
	}
}

func TestPutAndGet(t *testing.T) {
	r := NewRegistry()
	c := &mockClient{}
	r.Put("alpha", c)

	got, ok := r.Get("alpha")
	if !ok {
		t.Fatal("Get returned ok=false after Put")
	}
	if got != c {
		t.Error("Get returned a different client than Put stored")
	}
}

func TestPutReplaces(t *testing.T) {
	r := NewRegistry()
	first := &mockClient{}
	second := &mockClient{}
	r.Put("alpha", first)
	r.Put("alpha", second)

	got, _ := r.Get("alpha")
	if got != second {
		t.Error("Put did not replace the existing entry")
	}
	if r.Len() != 1 {
		t.Errorf("registry has %d entries, want 1", r.Len())
	}
}

func TestRemoveIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Put("alpha", &mockClient{})

	if !r.Remove("alpha") {
		t.Error("first Remove returned false for present entry")
	}
	if r.Remove("alpha") {
		t.Error("second Remove returned true for absent entry")
	}
	if _, ok := r.Get("alpha"); ok {
		t.Error("entry still present after Remove")
	}
}

func TestListSortedByCreation(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		r.Put(name, &mockClient{})
	}

	infos := r.List()
	if len(infos) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i].CreatedAt.Before(infos[i-1].CreatedAt) {
			t.Errorf("List not sorted by creation time at index %d", i)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("s%d", n%5)
			r.Put(name, &mockClient{})
			r.Get(name)
			r.List()
			if n%2 == 0 {
				r.Remove(name)
			}
		}(i)
	}
	wg.Wait()
}

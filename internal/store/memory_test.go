package store

import (
	"sync"
	"testing"

	"chordkv/internal/domain"
	"chordkv/internal/logger"
)

func mustSpace(t *testing.T) domain.Space {
	t.Helper()
	sp, err := domain.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

func TestMemoryPutGetDelete(t *testing.T) {
	sp := mustSpace(t)
	s := NewMemory(&logger.NopLogger{})
	id := sp.FromUint64(42)

	if _, err := s.Get(id); err != domain.ErrItemNotFound {
		t.Fatalf("expected miss before insert, got %v", err)
	}

	s.Put(domain.Item{Key: id, RawKey: "foo", Value: "bar", Depth: 0})
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "bar" {
		t.Errorf("Value = %q, want bar", got.Value)
	}

	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(id); err != domain.ErrItemNotFound {
		t.Errorf("expected miss after delete, got %v", err)
	}
	if err := s.Delete(id); err != domain.ErrItemNotFound {
		t.Errorf("expected ErrItemNotFound on double delete, got %v", err)
	}
}

func TestMemoryScanOnlyDepthZero(t *testing.T) {
	sp := mustSpace(t)
	s := NewMemory(&logger.NopLogger{})
	s.Put(domain.Item{Key: sp.FromUint64(1), RawKey: "a", Value: "v1", Depth: 0})
	s.Put(domain.Item{Key: sp.FromUint64(2), RawKey: "b", Value: "v2", Depth: 1})

	items := s.Scan()
	if len(items) != 1 || items[0].RawKey != "a" {
		t.Errorf("Scan() = %+v, want only depth-0 item 'a'", items)
	}
}

func TestMemorySplit(t *testing.T) {
	sp := mustSpace(t)
	s := NewMemory(&logger.NopLogger{})
	s.Put(domain.Item{Key: sp.FromUint64(5), RawKey: "in", Depth: 0})
	s.Put(domain.Item{Key: sp.FromUint64(200), RawKey: "out", Depth: 0})

	keep, give := s.Split(sp.FromUint64(0), sp.FromUint64(10))
	if len(keep) != 1 || keep[0].RawKey != "in" {
		t.Errorf("keep = %+v, want only 'in'", keep)
	}
	if len(give) != 1 || give[0].RawKey != "out" {
		t.Errorf("give = %+v, want only 'out'", give)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	sp := mustSpace(t)
	s := NewMemory(&logger.NopLogger{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := sp.FromUint64(uint64(n))
			s.Put(domain.Item{Key: id, RawKey: "k", Value: "v", Depth: 0})
			_, _ = s.Get(id)
		}(i)
	}
	wg.Wait()
	if len(s.All()) != 50 {
		t.Errorf("All() len = %d, want 50", len(s.All()))
	}
}

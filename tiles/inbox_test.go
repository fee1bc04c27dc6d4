package tiles

import (
	"sync"
	"testing"
)

func TestInboxConcurrentPost(t *testing.T) {
	b := NewInbox()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Post(Completion{Session: 1, ID: ID{X: i}})
		}(i)
	}
	wg.Wait()

	select {
	case <-b.Ready():
	default:
		t.Error("Ready not signalled after Post")
	}
	got := b.Drain(nil)
	if len(got) != 50 {
		t.Fatalf("Drain returned %v completions, want 50", len(got))
	}
	seen := map[int]bool{}
	for _, c := range got {
		seen[c.ID.X] = true
	}
	if len(seen) != 50 {
		t.Errorf("Drain returned duplicates: %v distinct", len(seen))
	}
	if b.Len() != 0 {
		t.Errorf("Len after Drain = %v", b.Len())
	}
}

func TestLRUOrder(t *testing.T) {
	var l lruList
	a := l.PushFront(ID{X: 1})
	l.PushFront(ID{X: 2})
	c := l.PushFront(ID{X: 3})

	if id, _ := l.Oldest(); id.X != 1 {
		t.Fatalf("Oldest = %v, want X=1", id)
	}
	l.MoveToFront(a)
	if id, _ := l.Oldest(); id.X != 2 {
		t.Errorf("Oldest after MoveToFront = %v, want X=2", id)
	}
	l.Remove(c)
	l.Remove(nil)
	if l.Len() != 2 {
		t.Errorf("Len = %v, want 2", l.Len())
	}
	l.Clear()
	if _, ok := l.Oldest(); ok {
		t.Error("Oldest on cleared list")
	}
}

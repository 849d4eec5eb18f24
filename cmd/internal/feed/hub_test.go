package feed

import (
	"log/slog"
	"sync"
	"testing"
	"time"
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestHub_JoinLeaveCount(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	h := NewHub(quietLogger(), func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	})

	a := NewClient("a", "u1", 8)
	b := NewClient("b", "u2", 8)
	h.Join(a)
	h.Join(b)
	if got := h.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}

	h.Leave("a")
	h.Leave("a") // unknown ids are ignored
	if got := h.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("left client not closed")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 1}
	if len(counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("counts = %v, want %v", counts, want)
		}
	}
}

func TestHub_PublishFansOut(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	a := NewClient("a", "u1", 8)
	b := NewClient("b", "u2", 8)
	h.Join(a)
	h.Join(b)

	ev := Event{Type: TypeCatalogChanged, Entity: "suppliers", ID: "s1", Action: ActionCreated, At: time.Unix(0, 0).UTC()}
	h.Publish(ev)

	for _, c := range []*Client{a, b} {
		select {
		case got := <-c.Send:
			if got != ev {
				t.Fatalf("client %s got %+v, want %+v", c.ID, got, ev)
			}
		default:
			t.Fatalf("client %s received nothing", c.ID)
		}
	}
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	c := NewClient("slow", "u1", 2)
	h.Join(c)

	for range 5 {
		h.Publish(Event{Type: TypeCatalogChanged})
	}

	if got := len(c.Send); got != 2 {
		t.Fatalf("queued = %d, want 2", got)
	}
	if got := c.Dropped(); got != 3 {
		t.Fatalf("Dropped = %d, want 3", got)
	}
}

func TestHub_SkipsClosedClients(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	c := NewClient("c", "u1", 4)
	h.Join(c)
	c.Close()
	c.Close()

	h.Publish(Event{Type: TypeCatalogChanged})
	if got := len(c.Send); got != 0 {
		t.Fatalf("queued = %d, want 0", got)
	}
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	p.Publish(Event{Type: TypeCatalogChanged})
}

func TestHub_CloseAll(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	a := NewClient("a", "u1", 8)
	b := NewClient("b", "u2", 8)
	h.Join(a)
	h.Join(b)

	h.CloseAll()
	for _, c := range []*Client{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("client %s not closed", c.ID)
		}
	}
}

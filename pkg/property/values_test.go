package property

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/vigil"
	vigiltest "github.com/zoobzio/vigil/testing"
)

type player struct {
	Volume int
	Muted  bool
	Tags   []string
}

func volume(p player) int { return p.Volume }

func next[T any](t *testing.T, s *Stream[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, ok := s.Next(ctx)
	if !ok {
		t.Fatal("expected a value")
	}
	return v
}

func TestValues_YieldsOnChange(t *testing.T) {
	obj := New(player{Volume: 1})
	s := Values(obj, volume)
	defer s.Close()

	obj.Update(func(p *player) { p.Volume = 2 })
	obj.Set(player{Volume: 3})

	if v := next(t, s); v != 2 {
		t.Errorf("expected 2, got %d", v)
	}
	if v := next(t, s); v != 3 {
		t.Errorf("expected 3, got %d", v)
	}
}

func TestValues_Initial(t *testing.T) {
	obj := New(player{Volume: 7})
	s := Values(obj, volume, Initial())
	defer s.Close()

	if v := next(t, s); v != 7 {
		t.Errorf("expected initial 7, got %d", v)
	}
}

func TestValues_OnlyChanges(t *testing.T) {
	obj := New(player{Volume: 1})
	s := Values(obj, volume, OnlyChanges(), Initial())
	defer s.Close()

	obj.Update(func(p *player) { p.Muted = true })
	obj.Update(func(p *player) { p.Volume = 4 })

	if v := next(t, s); v != 1 {
		t.Errorf("expected initial 1, got %d", v)
	}
	if v := next(t, s); v != 4 {
		t.Errorf("expected 4 with unrelated change skipped, got %d", v)
	}
}

func TestValues_CloseReleasesObservation(t *testing.T) {
	obj := New(player{})
	s := Values(obj, volume)

	if obj.ObserverCount() != 1 {
		t.Fatalf("expected 1 observer, got %d", obj.ObserverCount())
	}

	s.Close()
	s.Close()

	if obj.ObserverCount() != 0 {
		t.Errorf("expected observation released, got %d observers", obj.ObserverCount())
	}
	obj.Set(player{Volume: 9})
	if _, ok := s.Next(context.Background()); ok {
		t.Error("closed stream must be exhausted")
	}
}

func TestValues_Buffering(t *testing.T) {
	obj := New(player{})
	s := Values(obj, volume, Buffering(vigil.BufferNewest(1)))
	defer s.Close()

	for i := 1; i <= 5; i++ {
		obj.Set(player{Volume: i})
	}
	if v := next(t, s); v != 5 {
		t.Errorf("expected only newest value 5, got %d", v)
	}
}

func TestMonitorValues(t *testing.T) {
	obj := New(player{Volume: 1})
	rec := vigiltest.NewRecorder[int]()

	m := MonitorValues(context.Background(), obj, volume, rec.Callback, Initial())

	obj.Set(player{Volume: 2})
	obj.Set(player{Volume: 3})

	if !vigiltest.WaitFor(t, time.Second, func() bool { return rec.Len() == 3 }) {
		t.Fatalf("expected 3 values, got %v", rec.Values())
	}
	got := rec.Values()
	for i, want := range []int{1, 2, 3} {
		if got[i] != want {
			t.Errorf("index %d: expected %d, got %d", i, want, got[i])
		}
	}

	m.Cancel()
	vigiltest.RequireStateWithin(t, m, vigil.StateCancelled, time.Second)

	if obj.ObserverCount() != 0 {
		t.Errorf("expected observation released on cancel, got %d observers", obj.ObserverCount())
	}
}

func TestMonitorValues_MonitorOptions(t *testing.T) {
	obj := New(player{})
	m := MonitorValues(context.Background(), obj, volume, func(context.Context, int) {},
		WithMonitorOptions(vigil.WithName("volume")),
	)
	defer m.Close()

	if m.Name() != "volume" {
		t.Errorf("expected name volume, got %q", m.Name())
	}
}

func TestMonitorValues_TeardownRacesWithNotifications(t *testing.T) {
	for round := 0; round < 20; round++ {
		obj := New(player{})
		m := MonitorValues(context.Background(), obj, volume, func(context.Context, int) {})

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					obj.Update(func(p *player) { p.Volume++ })
				}
			}()
		}
		m.Cancel()
		wg.Wait()
		m.Wait()

		if obj.ObserverCount() != 0 {
			t.Fatalf("round %d: observation leaked", round)
		}
	}
}

func TestToken_InvalidateIdempotent(t *testing.T) {
	obj := New(0)
	calls := 0
	tok := obj.Observe(func(_, _ int) { calls++ })

	obj.Set(1)
	tok.Invalidate()
	tok.Invalidate()
	obj.Set(2)

	if calls != 1 {
		t.Errorf("expected 1 notification, got %d", calls)
	}
}

func TestObject_NotifiesOldAndNew(t *testing.T) {
	obj := New(player{Volume: 1, Tags: []string{"a"}})
	var gotOld, gotNew int
	tok := obj.Observe(func(old, updated player) {
		gotOld, gotNew = old.Volume, updated.Volume
	})
	defer tok.Invalidate()

	obj.Update(func(p *player) { p.Volume = 10 })

	if gotOld != 1 || gotNew != 10 {
		t.Errorf("expected 1 -> 10, got %d -> %d", gotOld, gotNew)
	}
	if obj.Get().Volume != 10 {
		t.Errorf("expected Get to return 10, got %d", obj.Get().Volume)
	}
}

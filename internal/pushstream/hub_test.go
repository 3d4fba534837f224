package pushstream

import (
	"context"
	"testing"
	"time"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/pkg/event"
)

func TestHubBroadcast(t *testing.T) {
	h := newHub(apt.NewNoopLogger())
	a := h.Subscribe("a")
	b := h.Subscribe("b")

	h.broadcast(event.Event{Kind: event.KindOrderUpdated, Name: event.EventOrderUpdated})

	for name, ch := range map[string]<-chan event.Event{"a": a, "b": b} {
		select {
		case evt := <-ch:
			if evt.Kind != event.KindOrderUpdated {
				t.Errorf("%s got %q", name, evt.Kind)
			}
		default:
			t.Errorf("%s received nothing", name)
		}
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := newHub(apt.NewNoopLogger())
	ch := h.Subscribe("slow")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			h.broadcast(event.Event{Name: event.EventOrderUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := newHub(apt.NewNoopLogger())
	ch := h.Subscribe("a")

	h.Unsubscribe("a")
	h.Unsubscribe("a")

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	h.broadcast(event.Event{})
}

func TestHubCloseAll(t *testing.T) {
	h := newHub(apt.NewNoopLogger())
	ch := h.Subscribe("a")

	h.closeAll()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after closeAll")
	}
	late := h.Subscribe("late")
	if _, ok := <-late; ok {
		t.Error("subscribing after closeAll should return a closed channel")
	}
}

func TestPump(t *testing.T) {
	t.Run("untilClosed", func(t *testing.T) {
		ch := make(chan event.Event, 3)
		ch <- event.Event{Name: "a"}
		ch <- event.Event{Name: "b"}
		close(ch)

		sink := &MockSink{}
		Pump(context.Background(), ch, sink)

		if sink.count() != 2 {
			t.Errorf("applied = %d, want 2", sink.count())
		}
	})

	t.Run("untilCancelled", func(t *testing.T) {
		ch := make(chan event.Event)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			Pump(ctx, ch, &MockSink{})
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Pump() did not return after cancel")
		}
	})
}

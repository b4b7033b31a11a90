package eventbus

import (
	"testing"
	"time"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	b := New()
	ch1 := b.Subscribe("record.updated")
	ch2 := b.Subscribe("record.updated")

	b.Publish("record.updated", "pr-1")

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Topic != "record.updated" || evt.Payload != "pr-1" {
				t.Errorf("subscriber %d: unexpected event %+v", i, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for event", i)
		}
	}
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	t.Parallel()

	b := New()
	created := b.Subscribe("record.created")
	b.Publish("record.archived", "pr-2")

	select {
	case evt := <-created:
		t.Errorf("expected no event on record.created, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	b := New()
	_ = b.Subscribe("record.updated") // never consumed

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize+10; i++ {
			b.Publish("record.updated", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

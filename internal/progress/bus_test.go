package progress

import (
	"sync"
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe("inv-1", 8)
	b := bus.Subscribe("inv-1", 8)
	other := bus.Subscribe("inv-2", 8)

	bus.Publish("inv-1", Started("goal"))

	if ev := <-a.C; ev.Type != EventStarted {
		t.Errorf("Expected started on subscriber a, got %s", ev.Type)
	}
	if ev := <-b.C; ev.Type != EventStarted {
		t.Errorf("Expected started on subscriber b, got %s", ev.Type)
	}
	select {
	case ev := <-other.C:
		t.Errorf("Subscriber of inv-2 received %s", ev.Type)
	default:
	}
}

func TestOrderingPreservedPerSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("inv-1", 16)

	bus.Publish("inv-1", Started("goal"))
	for i := 1; i <= 3; i++ {
		bus.Publish("inv-1", TurnEvent(i, "entity_search", "next"))
	}
	bus.Publish("inv-1", Completed("done"))

	if ev := <-sub.C; ev.Type != EventStarted {
		t.Fatalf("Expected started first, got %s", ev.Type)
	}
	for i := 1; i <= 3; i++ {
		ev := <-sub.C
		if ev.Type != EventTurn || ev.Turn != i {
			t.Fatalf("Expected turn %d, got %s/%d", i, ev.Type, ev.Turn)
		}
	}
	if ev := <-sub.C; ev.Type != EventCompleted {
		t.Fatalf("Expected completed last, got %s", ev.Type)
	}
}

func TestSlowSubscriberDropsOldestKeepsTerminal(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("inv-1", 2)

	// Nothing reads; overflow the queue, then send the terminal event.
	for i := 1; i <= 10; i++ {
		bus.Publish("inv-1", TurnEvent(i, "t", "r"))
	}
	bus.Publish("inv-1", Completed("done"))

	var got []Event
	for len(got) < 2 {
		got = append(got, <-sub.C)
	}
	last := got[len(got)-1]
	if last.Type != EventCompleted {
		t.Errorf("Expected terminal event retained, got %s", last.Type)
	}
	// The oldest turns were evicted, the retained turn is the newest.
	if got[0].Type == EventTurn && got[0].Turn <= 8 {
		t.Errorf("Expected oldest events dropped, got turn %d", got[0].Turn)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("inv-1", 4)
	bus.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("Expected closed channel after unsubscribe")
	}
	if bus.SubscriberCount("inv-1") != 0 {
		t.Error("Expected no subscribers after unsubscribe")
	}
	// Double unsubscribe is harmless.
	bus.Unsubscribe(sub)
	// Publishing to an empty investigation is harmless.
	bus.Publish("inv-1", Completed("done"))
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe("inv-1", 4)
			for j := 0; j < 50; j++ {
				bus.Publish("inv-1", ProgressMsg("tick"))
			}
			bus.Unsubscribe(sub)
		}()
	}
	wg.Wait()

	if bus.SubscriberCount("inv-1") != 0 {
		t.Error("Expected all subscribers removed")
	}
}

func TestEventText(t *testing.T) {
	cases := []struct {
		ev   Event
		want string
	}{
		{Started("find Acme"), "Investigation started: find Acme"},
		{TurnEvent(2, "news_search", "broadening"), "Turn 2: news_search - broadening"},
		{Completed("3 findings"), "Investigation complete: 3 findings"},
		{ErrorEvent("boom"), "Investigation failed: boom"},
	}
	for _, tc := range cases {
		if got := tc.ev.Text(); got != tc.want {
			t.Errorf("Text() = %q, want %q", got, tc.want)
		}
	}
}

package pubsub

import (
	"sync"
	"testing"
	"time"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	got := make([]int, 2)

	bus.Subscribe(func(v int) { got[0] = v; wg.Done() })
	bus.Subscribe(func(v int) { got[1] = v; wg.Done() })

	bus.Publish(42)
	waitOrFatal(t, &wg)

	if got[0] != 42 || got[1] != 42 {
		t.Fatalf("expected both subscribers to receive 42, got %v", got)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus[string]()
	defer bus.Close()

	received := make(chan string, 1)
	unsubscribe := bus.Subscribe(func(v string) { received <- v })
	unsubscribe()

	bus.Publish("dropped")

	select {
	case v := <-received:
		t.Fatalf("unsubscribed handler received %q", v)
	case <-time.After(50 * time.Millisecond):
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusRecoverPanickingSubscriber(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(func(int) { panic("subscriber bug") })
	bus.Subscribe(func(int) { wg.Done() })

	bus.Publish(1)
	waitOrFatal(t, &wg)
}

func TestBusSubscribeAfterClose(t *testing.T) {
	bus := NewBus[int]()
	bus.Close()

	received := make(chan int, 1)
	unsubscribe := bus.Subscribe(func(v int) { received <- v })
	unsubscribe()

	bus.Publish(1)
	select {
	case <-received:
		t.Fatal("closed bus delivered a value")
	case <-time.After(50 * time.Millisecond):
	}
}

func waitOrFatal(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribers")
	}
}

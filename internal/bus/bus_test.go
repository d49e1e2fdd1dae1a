package bus

import (
	"errors"
	"fmt"
	"testing"

	hub "github.com/beaconhub/beacon/internal"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := New()
	ch1, cancel1, err := b.Subscribe("orders")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel1()
	ch2, cancel2, err := b.Subscribe("orders")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel2()

	ev := hub.NewEvent("created", "order-1")
	delivered, dropped := b.Publish("orders", ev)
	if delivered != 2 || dropped != 0 {
		t.Fatalf("Publish = (%d, %d), want (2, 0)", delivered, dropped)
	}

	for i, ch := range []<-chan hub.Event{ch1, ch2} {
		got := <-ch
		if got != ev {
			t.Errorf("subscriber %d got %+v, want %+v", i, got, ev)
		}
	}
}

func TestPublishDoesNotCrossChannels(t *testing.T) {
	t.Parallel()

	b := New()
	ch, cancel, err := b.Subscribe("alpha")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if delivered, _ := b.Publish("beta", hub.NewEvent("x", "y")); delivered != 0 {
		t.Errorf("publish to beta delivered %d on alpha", delivered)
	}
	if n := len(ch); n != 0 {
		t.Errorf("alpha subscriber buffered %d events", n)
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	b := New()
	_, cancel, err := b.Subscribe("busy")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	for i := 0; i < subscriberBufferSize; i++ {
		if _, dropped := b.Publish("busy", hub.NewEvent("n", fmt.Sprint(i))); dropped != 0 {
			t.Fatalf("unexpected drop at %d", i)
		}
	}
	if delivered, dropped := b.Publish("busy", hub.NewEvent("n", "overflow")); delivered != 0 || dropped != 1 {
		t.Errorf("overflow Publish = (%d, %d), want (0, 1)", delivered, dropped)
	}
}

func TestCancelClosesAndRemoves(t *testing.T) {
	t.Parallel()

	b := New()
	ch, cancel, err := b.Subscribe("orders")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("subscriber channel still open after cancel")
	}
	if n := b.Subscribers("orders"); n != 0 {
		t.Errorf("Subscribers = %d after cancel, want 0", n)
	}
	if infos := b.Channels(); len(infos) != 0 {
		t.Errorf("Channels = %v after last cancel, want empty", infos)
	}
}

func TestChannelsSorted(t *testing.T) {
	t.Parallel()

	b := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, _, err := b.Subscribe(name); err != nil {
			t.Fatalf("Subscribe(%s): %v", name, err)
		}
	}

	infos := b.Channels()
	want := []string{"alpha", "mid", "zeta"}
	if len(infos) != len(want) {
		t.Fatalf("got %d channels, want %d", len(infos), len(want))
	}
	for i, info := range infos {
		if info.Name != want[i] {
			t.Errorf("Channels()[%d] = %q, want %q", i, info.Name, want[i])
		}
		if info.Subscribers != 1 {
			t.Errorf("channel %q subscribers = %d, want 1", info.Name, info.Subscribers)
		}
	}
}

func TestCloseEndsSubscribers(t *testing.T) {
	t.Parallel()

	b := New()
	ch, _, err := b.Subscribe("orders")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Close()
	b.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Error("subscriber channel open after bus Close")
	}
	if _, _, err := b.Subscribe("orders"); !errors.Is(err, hub.ErrBusClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrBusClosed", err)
	}
}

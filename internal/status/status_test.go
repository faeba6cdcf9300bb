package status

import "testing"

func TestSubscribeReceivesPublishedValue(t *testing.T) {
	b := NewBroadcaster[string]()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish("hello")

	select {
	case v := <-ch:
		if v != "hello" {
			t.Errorf("got %q, want hello", v)
		}
	default:
		t.Fatal("expected a buffered value")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ch:
		// draining is fine too, just confirms no deadlock either way
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, unsub := b.Subscribe(1)
	unsub()

	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := NewBroadcaster[string]()
	ch1, unsub1 := b.Subscribe(2)
	ch2, unsub2 := b.Subscribe(2)
	defer unsub1()
	defer unsub2()

	b.Publish("x")

	if v := <-ch1; v != "x" {
		t.Errorf("ch1 got %q", v)
	}
	if v := <-ch2; v != "x" {
		t.Errorf("ch2 got %q", v)
	}
}

func TestNewHubInitializesEveryStream(t *testing.T) {
	h := NewHub()
	if h.ConnectionState == nil || h.TextBuffer == nil || h.MSDPSnapshot == nil ||
		h.GMCPSnapshot == nil || h.TabContent == nil || h.Variables == nil ||
		h.Triggers == nil || h.Aliases == nil || h.ContextQueue == nil {
		t.Fatal("expected every stream to be initialized")
	}
}

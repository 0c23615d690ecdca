package bus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := New()
	defer b.Close()

	var order []string
	b.Subscribe(WakewordDetected, func(Event) { order = append(order, "first") })
	b.Subscribe(WakewordDetected, func(Event) { order = append(order, "second") })

	b.Publish(NewEvent(WakewordDetected, "test", WakewordHit{Keyword: "kiwi"}))

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected [first second], got %v", order)
	}
}

func TestSubscriberOnlySeesItsKind(t *testing.T) {
	b := New()
	defer b.Close()

	var got []Kind
	b.Subscribe(VADSpeechEnd, func(ev Event) { got = append(got, ev.Kind) })

	b.Publish(NewEvent(VADSpeechStart, "test", nil))
	b.Publish(NewEvent(VADSpeechEnd, "test", nil))
	b.Publish(NewEvent(WakewordDetected, "test", nil))

	if len(got) != 1 || got[0] != VADSpeechEnd {
		t.Fatalf("expected only vad_speech_end, got %v", got)
	}
}

func TestAsyncSubscriberPreservesFIFO(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	b.SubscribeAsync(ASRRecognitionSuccess, func(ev Event) {
		mu.Lock()
		got = append(got, ev.Payload.(int))
		if len(got) == 10 {
			close(done)
		}
		mu.Unlock()
	})

	for i := range 10 {
		b.Publish(Event{Kind: ASRRecognitionSuccess, Payload: i})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async subscriber did not drain in time")
	}
	b.Close()

	for i, v := range got {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", got)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	count := 0
	sub := b.Subscribe(StateChanged, func(Event) { count++ })

	b.Publish(NewEvent(StateChanged, "test", nil))
	b.Unsubscribe(sub)
	b.Publish(NewEvent(StateChanged, "test", nil))

	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
}

func TestPublishAfterCloseDrops(t *testing.T) {
	b := New()

	count := 0
	b.Subscribe(StateChanged, func(Event) { count++ })
	b.Close()
	b.Publish(NewEvent(StateChanged, "test", nil))

	if count != 0 {
		t.Fatalf("expected no deliveries after close, got %d", count)
	}
}

func TestHandlerPanicDoesNotAbortOthers(t *testing.T) {
	b := New()
	defer b.Close()

	reached := false
	b.Subscribe(AgentResponse, func(Event) { panic("boom") })
	b.Subscribe(AgentResponse, func(Event) { reached = true })

	b.Publish(NewEvent(AgentResponse, "test", nil))

	if !reached {
		t.Fatal("second handler should run despite first panicking")
	}
}

func TestFrameConsumersBypassSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	subscriberHit := false
	b.Subscribe(AudioFrameReady, func(Event) { subscriberHit = true })

	var frames int
	b.RegisterFrameConsumer(func(AudioFrame) { frames++ })

	b.PublishFrame(AudioFrame{Data: []byte{1, 2}, SampleRate: 16000})
	b.PublishFrame(AudioFrame{Data: []byte{3, 4}, SampleRate: 16000})

	if frames != 2 {
		t.Fatalf("expected 2 frames, got %d", frames)
	}
	if subscriberHit {
		t.Fatal("frame path must not touch generic subscribers")
	}
}

func TestEventCopiesCarryIdentity(t *testing.T) {
	ev := NewEvent(AgentDispatchRequest, "test", nil).
		WithMessageID("m1").
		WithSession("s1", SessionResume)

	if ev.MessageID != "m1" || ev.SessionID != "s1" || ev.SessionAction != SessionResume {
		t.Fatalf("identity not carried: %+v", ev)
	}
}

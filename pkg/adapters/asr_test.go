package adapters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/statemachine"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

type fakeASR struct {
	mu      sync.Mutex
	results []ASRResult
	block   chan struct{} // non-nil blocks Recognize until closed
}

func (f *fakeASR) Recognize(ctx context.Context, _ []byte, _ int) (ASRResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ASRResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return ASRResult{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func asrFixture(t *testing.T, engine ASREngine) (*ASRAdapter, *bus.EventBus, *tracker.Tracker, *statemachine.Machine) {
	t.Helper()
	eventBus := bus.New()
	machine := statemachine.New(0)
	tr := tracker.New(nil)

	a := NewASRAdapter(eventBus, machine, tr, engine, config.AudioConfig{SampleRate: 16000})
	require.NoError(t, a.Initialize())
	require.NoError(t, a.Start())
	t.Cleanup(func() {
		a.Stop()
		a.Cleanup()
		eventBus.Close()
	})
	return a, eventBus, tr, machine
}

func speechEnd(msgID string) bus.Event {
	return bus.NewEvent(bus.VADSpeechEnd, "vad_adapter",
		bus.SpeechBoundary{Audio: make([]byte, 3200), DurationMS: 400}).WithMessageID(msgID)
}

func TestRecognitionSuccessFlow(t *testing.T) {
	engine := &fakeASR{results: []ASRResult{{Text: "导航到北京故宫", Confidence: 0.97}}}
	a, eventBus, tr, machine := asrFixture(t, engine)

	machine.HandleEvent(statemachine.WakewordTriggered, "")
	machine.HandleEvent(statemachine.SpeechStart, "")
	machine.HandleEvent(statemachine.SpeechEnd, "")

	var got []bus.Event
	eventBus.Subscribe(bus.ASRRecognitionSuccess, func(ev bus.Event) { got = append(got, ev) })

	msgID := tr.CreateMessageID()
	a.HandleEvent(speechEnd(msgID))

	require.Len(t, got, 1)
	rec := got[0].Payload.(bus.Recognition)
	assert.Equal(t, "导航到北京故宫", rec.Text)
	assert.Equal(t, msgID, got[0].MessageID)

	snap, _ := tr.Snapshot(msgID)
	assert.Equal(t, "导航到北京故宫", snap.Query)
	assert.Equal(t, statemachine.Deciding, machine.Current())
}

func TestEmptyRecognitionIsFailure(t *testing.T) {
	engine := &fakeASR{} // returns empty text
	a, eventBus, tr, machine := asrFixture(t, engine)

	machine.HandleEvent(statemachine.WakewordTriggered, "")
	machine.HandleEvent(statemachine.SpeechStart, "")
	machine.HandleEvent(statemachine.SpeechEnd, "")

	var failed []bus.Event
	eventBus.Subscribe(bus.ASRRecognitionFailed, func(ev bus.Event) { failed = append(failed, ev) })

	msgID := tr.CreateMessageID()
	a.HandleEvent(speechEnd(msgID))

	require.Len(t, failed, 1)
	snap, _ := tr.Snapshot(msgID)
	assert.Equal(t, tracker.StatusFailed, snap.Status)
	assert.Equal(t, statemachine.Idle, machine.Current())
}

// A second utterance arriving while recognition is in flight is dropped with
// a busy trace entry.
func TestBusyPolicyDropsSecondUtterance(t *testing.T) {
	engine := &fakeASR{
		results: []ASRResult{{Text: "第一句", Confidence: 0.9}},
		block:   make(chan struct{}),
	}
	a, _, tr, machine := asrFixture(t, engine)
	machine.HandleEvent(statemachine.WakewordTriggered, "")
	machine.HandleEvent(statemachine.SpeechStart, "")
	machine.HandleEvent(statemachine.SpeechEnd, "")

	first := tr.CreateMessageID()
	done := make(chan struct{})
	go func() {
		a.HandleEvent(speechEnd(first))
		close(done)
	}()

	// Wait until the first recognition is in flight.
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.inFlight
	}, time.Second, 5*time.Millisecond)

	second := tr.CreateMessageID()
	a.HandleEvent(speechEnd(second))

	snap, _ := tr.Snapshot(second)
	assert.Equal(t, tracker.StatusBusy, snap.Status)

	close(engine.block)
	<-done

	snap, _ = tr.Snapshot(first)
	assert.Equal(t, "第一句", snap.Query)
}

func TestStopInterruptsInFlightRecognition(t *testing.T) {
	engine := &fakeASR{block: make(chan struct{})}
	a, _, tr, machine := asrFixture(t, engine)
	machine.HandleEvent(statemachine.WakewordTriggered, "")
	machine.HandleEvent(statemachine.SpeechStart, "")
	machine.HandleEvent(statemachine.SpeechEnd, "")

	msgID := tr.CreateMessageID()
	done := make(chan struct{})
	go func() {
		a.HandleEvent(speechEnd(msgID))
		close(done)
	}()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.inFlight
	}, time.Second, 5*time.Millisecond)

	a.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not interrupt in-flight recognition")
	}
}

package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFirstSessionRuns(t *testing.T) {
	m := NewManager(time.Minute)

	s, err := m.Create("music_agent", "u1", 20, true)
	require.NoError(t, err)
	assert.Equal(t, Running, s.State)

	active, ok := m.Active("u1")
	require.True(t, ok)
	assert.Equal(t, s.ID, active.ID)
}

func TestHigherPriorityPreemptsInterruptible(t *testing.T) {
	m := NewManager(time.Minute)

	music, err := m.Create("music_agent", "u1", 20, true)
	require.NoError(t, err)

	nav, err := m.Create("navigation_agent", "u1", 80, false)
	require.NoError(t, err)

	active, ok := m.Active("u1")
	require.True(t, ok)
	assert.Equal(t, nav.ID, active.ID)

	stack := m.Stack("u1")
	require.Len(t, stack, 1)
	assert.Equal(t, music.ID, stack[0].ID)
	assert.Equal(t, Paused, stack[0].State)
}

func TestHigherPriorityRefusedWhenNotInterruptible(t *testing.T) {
	m := NewManager(time.Minute)

	_, err := m.Create("navigation_agent", "u1", 80, false)
	require.NoError(t, err)

	_, err = m.Create("phone_agent", "u1", 90, true)
	require.ErrorIs(t, err, ErrConflict)
}

func TestLowerOrEqualPriorityRefused(t *testing.T) {
	m := NewManager(time.Minute)

	_, err := m.Create("phone_agent", "u1", 60, true)
	require.NoError(t, err)

	_, err = m.Create("music_agent", "u1", 20, true)
	require.ErrorIs(t, err, ErrConflict)

	_, err = m.Create("system_agent", "u1", 60, true)
	require.ErrorIs(t, err, ErrConflict)
}

func TestWaitingSessionAlwaysStacked(t *testing.T) {
	m := NewManager(time.Minute)

	hotel, err := m.Create("hotel_agent", "u1", 60, false)
	require.NoError(t, err)
	require.NoError(t, m.WaitForInput(hotel.ID, "请问哪个城市？", "text"))

	// Even a lower-priority, non-preempting request stacks a waiting session.
	vc, err := m.Create("vehicle_control_agent", "u1", 50, true)
	require.NoError(t, err)

	active, ok := m.Active("u1")
	require.True(t, ok)
	assert.Equal(t, vc.ID, active.ID)

	stack := m.Stack("u1")
	require.Len(t, stack, 1)
	assert.Equal(t, hotel.ID, stack[0].ID)
}

func TestCompletePopsAndResumesTop(t *testing.T) {
	m := NewManager(time.Minute)

	hotel, _ := m.Create("hotel_agent", "u1", 60, false)
	m.WaitForInput(hotel.ID, "请问哪个城市？", "text")
	vc, err := m.Create("vehicle_control_agent", "u1", 50, true)
	require.NoError(t, err)

	resumed, hasResumed, err := m.Complete(vc.ID)
	require.NoError(t, err)
	require.True(t, hasResumed)
	assert.Equal(t, hotel.ID, resumed.ID)
	assert.Equal(t, Running, resumed.State)

	active, ok := m.Active("u1")
	require.True(t, ok)
	assert.Equal(t, hotel.ID, active.ID)
}

func TestResumeAnswersWaitingSession(t *testing.T) {
	m := NewManager(time.Minute)

	s, _ := m.Create("music_agent", "u1", 20, true)
	m.WaitForInput(s.ID, "请问想听什么歌？", "text")

	resumed, err := m.Resume(s.ID, "周杰伦的晴天")
	require.NoError(t, err)
	assert.Equal(t, Running, resumed.State)
	assert.Equal(t, "周杰伦的晴天", resumed.Context["last_user_input"])
	assert.Empty(t, resumed.Prompt)
}

func TestResumeRejectsNonTop(t *testing.T) {
	m := NewManager(time.Minute)

	a, _ := m.Create("hotel_agent", "u1", 30, true)
	m.WaitForInput(a.ID, "a?", "text")
	b, _ := m.Create("music_agent", "u1", 40, true)
	m.WaitForInput(b.ID, "b?", "text")
	_, err := m.Create("navigation_agent", "u1", 80, true)
	require.NoError(t, err)

	// a is below b on the stack.
	_, err = m.Resume(a.ID, "answer")
	require.ErrorIs(t, err, ErrNotResumable)
}

func TestAtMostOneActiveSessionPerUser(t *testing.T) {
	m := NewManager(time.Minute)

	// Build a deep stack, then verify the invariant.
	s1, _ := m.Create("chat_agent", "u1", 10, true)
	_ = s1
	m.Create("music_agent", "u1", 20, true)
	m.Create("phone_agent", "u1", 60, true)
	m.Create("navigation_agent", "u1", 80, true)

	activeCount := 0
	if active, ok := m.Active("u1"); ok && active.State.Active() {
		activeCount++
	}
	for _, s := range m.Stack("u1") {
		if s.State.Active() {
			activeCount++
		}
		assert.Equal(t, Paused, s.State)
	}
	assert.Equal(t, 1, activeCount)
}

// Property test over random (existing priority, interruptible, new priority)
// tuples: creation must succeed exactly when the existing session is waiting
// for input, or the new priority is strictly higher and the existing session
// is interruptible.
func TestPreemptionRuleProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		m := NewManager(time.Minute)

		existingPriority := rng.Intn(101)
		existingInterruptible := rng.Intn(2) == 0
		existingWaiting := rng.Intn(4) == 0
		newPriority := rng.Intn(101)

		existing, err := m.Create("existing", "u1", existingPriority, existingInterruptible)
		if err != nil {
			t.Fatalf("setup create failed: %v", err)
		}
		if existingWaiting {
			m.WaitForInput(existing.ID, "?", "text")
		}

		_, err = m.Create("incoming", "u1", newPriority, true)

		shouldSucceed := existingWaiting ||
			(newPriority > existingPriority && existingInterruptible)

		if shouldSucceed && err != nil {
			t.Fatalf("case %d: expected success (existing=%d/%t waiting=%t new=%d), got %v",
				i, existingPriority, existingInterruptible, existingWaiting, newPriority, err)
		}
		if !shouldSucceed && !errors.Is(err, ErrConflict) {
			t.Fatalf("case %d: expected conflict (existing=%d/%t waiting=%t new=%d), got %v",
				i, existingPriority, existingInterruptible, existingWaiting, newPriority, err)
		}
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	m := NewManager(20 * time.Millisecond)

	s, _ := m.Create("music_agent", "u1", 20, true)
	time.Sleep(40 * time.Millisecond)

	expired := m.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, s.ID, expired[0].ID)
	assert.Equal(t, Errored, expired[0].State)

	_, ok := m.Active("u1")
	assert.False(t, ok)
}

func TestSweepKeepsFreshSessions(t *testing.T) {
	m := NewManager(time.Hour)
	m.Create("music_agent", "u1", 20, true)

	assert.Empty(t, m.Sweep())
	_, ok := m.Active("u1")
	assert.True(t, ok)
}

func TestContextSurvivesWaitResumeCycle(t *testing.T) {
	m := NewManager(time.Minute)

	s, _ := m.Create("hotel_agent", "u1", 60, true)
	require.NoError(t, m.SetContext(s.ID, map[string]any{"slot_city": "上海"}))
	m.WaitForInput(s.ID, "请问入住日期是哪天？", "text")

	resumed, err := m.Resume(s.ID, "明天")
	require.NoError(t, err)
	assert.Equal(t, "上海", resumed.Context["slot_city"])
}

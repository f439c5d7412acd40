package memory

import (
	"fmt"
	"sync"
	"time"
)

// sessionState is the last known position of one user.
type sessionState struct {
	id   string
	last time.Time
	turn int
}

// sessionTracker assigns timestamps, session ids and turn numbers. A new
// session starts when the gap since the user's last exchange exceeds gap.
// Timestamps handed out for one user are strictly increasing.
type sessionTracker struct {
	gap time.Duration

	mu    sync.Mutex
	users map[string]*sessionState
}

func newSessionTracker(gap time.Duration) *sessionTracker {
	return &sessionTracker{gap: gap, users: make(map[string]*sessionState)}
}

// next returns the timestamp, session id and turn for a new exchange at now.
func (t *sessionTracker) next(userID string, now time.Time) (time.Time, string, int) {
	now = now.UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.users[userID]
	if !ok || now.Sub(st.last) > t.gap {
		st = &sessionState{id: sessionID(userID, now), last: now}
		t.users[userID] = st
		return now, st.id, 0
	}

	if !now.After(st.last) {
		now = st.last.Add(time.Microsecond)
	}
	st.last = now
	st.turn++
	return now, st.id, st.turn
}

// forget drops the user's session so the next exchange starts a new one.
func (t *sessionTracker) forget(userID string) {
	t.mu.Lock()
	delete(t.users, userID)
	t.mu.Unlock()
}

func sessionID(userID string, start time.Time) string {
	return fmt.Sprintf("session_%s_%s", userID, start.Format("20060102T150405"))
}

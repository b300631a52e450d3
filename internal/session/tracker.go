// Package session tracks the authenticated user, if any. Authentication
// itself happens elsewhere; callers report logins and logouts here.
package session

import (
	"strings"
	"sync"

	"budgetsync/internal/store"
)

// Event reports a session change. Scope is zero on logout.
type Event struct {
	Scope    store.Scope
	LoggedIn bool
}

// Tracker holds the current session and fans changes out to subscribers.
// Subscribers only ever see the latest event: a slow reader skips
// intermediate changes rather than blocking Login.
type Tracker struct {
	mu      sync.RWMutex
	current store.Scope
	active  bool
	subs    []chan Event
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Login activates a session for userID. Logging in again as the same user
// is a no-op.
func (t *Tracker) Login(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active && t.current.UserID == userID {
		return false
	}
	t.current = store.Scope{UserID: userID}
	t.active = true
	t.publish(Event{Scope: t.current, LoggedIn: true})
	return true
}

// Logout ends the current session, if any.
func (t *Tracker) Logout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.current = store.Scope{}
	t.active = false
	t.publish(Event{})
}

// Current returns the active scope.
func (t *Tracker) Current() (store.Scope, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.active
}

// Subscribe returns a channel receiving every subsequent session change.
func (t *Tracker) Subscribe() <-chan Event {
	ch := make(chan Event, 1)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

func (t *Tracker) publish(ev Event) {
	for _, ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

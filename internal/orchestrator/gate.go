package orchestrator

import "sync"

// userGate serializes run admission per user. Without it two concurrent runs
// by the same user could both pass the affordability check and jointly
// overdraw the balance.
type userGate struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserGate() *userGate {
	return &userGate{locks: make(map[string]*sync.Mutex)}
}

// acquire blocks until the user's slot is free and returns the release func.
func (g *userGate) acquire(userID string) func() {
	g.mu.Lock()
	l, ok := g.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[userID] = l
	}
	g.mu.Unlock()
	l.Lock()
	return l.Unlock
}

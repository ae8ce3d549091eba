package service

import (
	"sync"

	"github.com/fjod/cartflow/internal/domain"
)

// scopeLocks hands out one RWMutex per cart scope. Mutations take the write
// side so each read-modify-write is atomic and emissions follow apply order;
// reads that publish take the read side.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[domain.Scope]*sync.RWMutex
}

func (l *scopeLocks) get(scope domain.Scope) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locks == nil {
		l.locks = make(map[domain.Scope]*sync.RWMutex)
	}
	lock, ok := l.locks[scope]
	if !ok {
		lock = &sync.RWMutex{}
		l.locks[scope] = lock
	}
	return lock
}

package events

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Log keeps the most recent events per source in memory.
type Log struct {
	mu       sync.RWMutex
	capacity int
	bySource map[common.Address][]Event
}

// NewLog returns a log retaining up to capacity events per source.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{capacity: capacity, bySource: make(map[common.Address][]Event)}
}

func (l *Log) Record(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := append(l.bySource[e.Source], e)
	if len(list) > l.capacity {
		list = append([]Event(nil), list[len(list)-l.capacity:]...)
	}
	l.bySource[e.Source] = list
	return nil
}

func (l *Log) List(_ context.Context, source common.Address, limit int) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := l.bySource[source]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Event, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

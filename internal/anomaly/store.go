package anomaly

import (
	"sync"
	"time"

	"loadwatch/internal/model"
)

type Store struct {
	mu    sync.RWMutex
	buf   []model.StoredAnomaly
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 2000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(entry model.StoredAnomaly) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, entry)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = entry
}

func (s *Store) List(limit int) []model.StoredAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.StoredAnomaly, 0, limit)
	for i := len(s.buf) - limit; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) ByServer(server string, limit int) []model.StoredAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StoredAnomaly, 0)
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].Server != server {
			continue
		}
		out = append(out, s.buf[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	// newest-first scan, flip back to insertion order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.StoredAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StoredAnomaly, 0)
	for _, entry := range s.buf {
		if !entry.Record.Timestamp.Before(ts) {
			out = append(out, entry)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}

package status

import (
	"sync"

	"loadwatch/internal/model"
)

// Store keeps the latest report per server. When the server count
// exceeds the limit, the least recently checked server is dropped.
type Store struct {
	mu       sync.RWMutex
	byServer map[string]model.StatusReport
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{
		byServer: make(map[string]model.StatusReport),
		limit:    limit,
	}
}

func (s *Store) Update(report model.StatusReport) {
	if report.Server == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byServer[report.Server] = report
	if len(s.byServer) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(server string) (model.StatusReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.byServer[server]
	return report, ok
}

func (s *Store) All() []model.StatusReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StatusReport, 0, len(s.byServer))
	for _, report := range s.byServer {
		out = append(out, report)
	}
	return out
}

func (s *Store) Servers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byServer))
	for server := range s.byServer {
		out = append(out, server)
	}
	return out
}

func (s *Store) Remove(server string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byServer, server)
}

func (s *Store) evictOldest() {
	var oldestServer string
	for server, report := range s.byServer {
		if oldestServer == "" || report.CheckedAt.Before(s.byServer[oldestServer].CheckedAt) {
			oldestServer = server
		}
	}
	if oldestServer != "" {
		delete(s.byServer, oldestServer)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byServer = make(map[string]model.StatusReport)
}

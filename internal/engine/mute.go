package engine

import (
	"strings"
	"sync"

	"loadwatch/internal/config"
)

// MuteSet suppresses alerts by exact server or rule name. The
// configured entries are rebuilt on every reload; runtime entries added
// through the admin API survive reloads.
type MuteSet struct {
	mu      sync.RWMutex
	servers map[string]struct{}
	rules   map[string]struct{}
	runtime map[string]struct{}
}

func NewMuteSet(cfg config.MuteConfig) *MuteSet {
	m := &MuteSet{runtime: make(map[string]struct{})}
	m.apply(cfg)
	return m
}

func (m *MuteSet) apply(cfg config.MuteConfig) {
	servers := make(map[string]struct{}, len(cfg.Servers))
	for _, s := range cfg.Servers {
		if s = strings.TrimSpace(s); s != "" {
			servers[s] = struct{}{}
		}
	}
	rules := make(map[string]struct{}, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if r = strings.TrimSpace(r); r != "" {
			rules[r] = struct{}{}
		}
	}
	m.mu.Lock()
	m.servers = servers
	m.rules = rules
	m.mu.Unlock()
}

func (m *MuteSet) Reconfigure(cfg config.MuteConfig) {
	m.apply(cfg)
}

func (m *MuteSet) Mute(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	m.mu.Lock()
	m.runtime[name] = struct{}{}
	m.mu.Unlock()
}

func (m *MuteSet) Unmute(name string) {
	name = strings.TrimSpace(name)
	m.mu.Lock()
	delete(m.runtime, name)
	m.mu.Unlock()
}

// Muted reports whether an alert for (server, rule) is suppressed.
func (m *MuteSet) Muted(server, rule string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.servers[server]; ok {
		return true
	}
	if _, ok := m.rules[rule]; ok {
		return true
	}
	if _, ok := m.runtime[server]; ok {
		return true
	}
	_, ok := m.runtime[rule]
	return ok
}

func (m *MuteSet) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.servers)+len(m.rules)+len(m.runtime))
	for s := range m.servers {
		out = append(out, s)
	}
	for r := range m.rules {
		out = append(out, r)
	}
	for n := range m.runtime {
		out = append(out, n)
	}
	return out
}

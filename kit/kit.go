// Package kit answers whether a team needs a new kit this cycle. The real
// answer lives with the club's season planning; this static implementation
// is table-driven from configuration.
package kit

import (
	"context"
	"strings"
	"sync"
)

// StaticPolicy is a map-driven core.KitPolicy. Lookups are case-insensitive
// on team name; unknown teams get the Default answer.
type StaticPolicy struct {
	mu      sync.RWMutex
	byTeam  map[string]bool
	Default bool
}

// NewStaticPolicy builds a policy from a team -> new-kit-required map.
func NewStaticPolicy(byTeam map[string]bool, defaultRequired bool) *StaticPolicy {
	p := &StaticPolicy{byTeam: make(map[string]bool, len(byTeam)), Default: defaultRequired}
	for team, required := range byTeam {
		p.byTeam[strings.ToLower(team)] = required
	}
	return p
}

// Set updates one team's entry.
func (p *StaticPolicy) Set(team string, required bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTeam[strings.ToLower(team)] = required
}

// NewKitRequired implements core.KitPolicy.
func (p *StaticPolicy) NewKitRequired(_ context.Context, teamName string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if required, ok := p.byTeam[strings.ToLower(teamName)]; ok {
		return required, nil
	}
	return p.Default, nil
}

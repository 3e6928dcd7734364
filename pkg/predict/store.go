package predict

import (
	"sort"
	"sync"
	"time"
)

///////////////////////////////////////////////////////////////
////////////////////////// Store interfaces ///////////////////
///////////////////////////////////////////////////////////////

// MatchHistory is the read side the feature and rating code depends on.
// Every query that takes a `before` time must exclude matches at or after
// that instant, so features never see the fixture being predicted.
type MatchHistory interface {
	// TeamMatches returns up to limit finished matches for the team
	// strictly before the given time, most recent first. A non-empty
	// season restricts the result to that season.
	TeamMatches(teamID int64, season string, before time.Time, limit int) ([]*Match, error)

	// HeadToHead returns up to limit finished meetings between the two
	// teams strictly before the given time, most recent first.
	HeadToHead(teamA, teamB int64, before time.Time, limit int) ([]*Match, error)

	// MatchByID returns the match with the given ID, nil if unknown.
	MatchByID(id int64) (*Match, error)

	// AllFinished returns every finished match ordered by kickoff time
	// ascending, ties broken by match ID. Rating replay depends on this
	// ordering being stable.
	AllFinished() ([]*Match, error)

	// Appearances returns the player appearances recorded for a match
	// and team.
	Appearances(matchID, teamID int64) ([]*PlayerAppearance, error)

	// PlayerAppearances returns up to limit appearances for a player
	// in matches strictly before the given time, most recent first.
	PlayerAppearances(playerID int64, before time.Time, limit int) ([]*PlayerAppearance, error)
}

// MatchWriter is the ingestion side.
type MatchWriter interface {
	SaveTeam(t *Team) error
	SaveMatch(m *Match) error
	SaveAppearance(a *PlayerAppearance) error
}

// SnapshotStore persists computed form snapshots keyed by match and team.
type SnapshotStore interface {
	SaveFormSnapshot(s *FormSnapshot) error
	FormSnapshotFor(matchID, teamID int64) (*FormSnapshot, error)
}

// ProfileStore persists per-market accuracy profiles.
type ProfileStore interface {
	Profile(market string) (*AccuracyProfile, error)
	SaveProfile(p *AccuracyProfile) error
	Profiles() ([]*AccuracyProfile, error)
}

// Store is the full persistence surface.
type Store interface {
	MatchHistory
	MatchWriter
	SnapshotStore
	ProfileStore
	Close() error
}

///////////////////////////////////////////////////////////////
////////////////////////// MemoryStore ////////////////////////
///////////////////////////////////////////////////////////////

// MemoryStore is an in-memory Store used by tests and one-shot
// evaluations where a database is overkill.
type MemoryStore struct {
	mu          sync.RWMutex
	teams       map[int64]*Team
	matches     map[int64]*Match
	appearances []*PlayerAppearance
	snapshots   map[[2]int64]*FormSnapshot
	profiles    map[string]*AccuracyProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:     make(map[int64]*Team),
		matches:   make(map[int64]*Match),
		snapshots: make(map[[2]int64]*FormSnapshot),
		profiles:  make(map[string]*AccuracyProfile),
	}
}

func (s *MemoryStore) SaveTeam(t *Team) error {
	if err := t.BeforeSave(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *t
	s.teams[t.ID] = &copied
	return nil
}

func (s *MemoryStore) SaveMatch(m *Match) error {
	if err := m.BeforeSave(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.matches[m.ID] = &copied
	return nil
}

func (s *MemoryStore) SaveAppearance(a *PlayerAppearance) error {
	if err := a.BeforeSave(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *a
	s.appearances = append(s.appearances, &copied)
	return nil
}

func (s *MemoryStore) TeamMatches(teamID int64, season string, before time.Time, limit int) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Match
	for _, m := range s.matches {
		if !m.Finished || !m.Involves(teamID) {
			continue
		}
		if season != "" && m.Season != season {
			continue
		}
		if !m.UTCTime.Before(before) {
			continue
		}
		out = append(out, m)
	}
	sortMatchesDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) HeadToHead(teamA, teamB int64, before time.Time, limit int) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Match
	for _, m := range s.matches {
		if !m.Finished || !m.Involves(teamA) || !m.Involves(teamB) {
			continue
		}
		if !m.UTCTime.Before(before) {
			continue
		}
		out = append(out, m)
	}
	sortMatchesDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MatchByID(id int64) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (s *MemoryStore) AllFinished() ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Match
	for _, m := range s.matches {
		if m.Finished {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UTCTime.Equal(out[j].UTCTime) {
			return out[i].UTCTime.Before(out[j].UTCTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Appearances(matchID, teamID int64) ([]*PlayerAppearance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*PlayerAppearance
	for _, a := range s.appearances {
		if a.MatchID == matchID && a.TeamID == teamID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) PlayerAppearances(playerID int64, before time.Time, limit int) ([]*PlayerAppearance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*PlayerAppearance
	for _, a := range s.appearances {
		if a.PlayerID != playerID {
			continue
		}
		// Only appearances in matches that verifiably predate the cutoff
		m, ok := s.matches[a.MatchID]
		if !ok || !m.UTCTime.Before(before) {
			continue
		}
		out = append(out, a)
	}
	// Most recent first, by the kickoff of the match they belong to
	sort.Slice(out, func(i, j int) bool {
		mi, iok := s.matches[out[i].MatchID]
		mj, jok := s.matches[out[j].MatchID]
		if iok && jok && !mi.UTCTime.Equal(mj.UTCTime) {
			return mi.UTCTime.After(mj.UTCTime)
		}
		return out[i].MatchID > out[j].MatchID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveFormSnapshot(snap *FormSnapshot) error {
	if err := snap.BeforeSave(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	s.snapshots[[2]int64{snap.MatchID, snap.TeamID}] = &copied
	return nil
}

func (s *MemoryStore) FormSnapshotFor(matchID, teamID int64) (*FormSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[[2]int64{matchID, teamID}]
	if !ok {
		return nil, nil
	}
	copied := *snap
	return &copied, nil
}

func (s *MemoryStore) Profile(market string) (*AccuracyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[market]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) SaveProfile(p *AccuracyProfile) error {
	if err := p.BeforeSave(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.profiles[p.Market] = &copied
	return nil
}

func (s *MemoryStore) Profiles() ([]*AccuracyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AccuracyProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// sortMatchesDesc orders matches most recent first, newest ID first on ties.
func sortMatchesDesc(matches []*Match) {
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].UTCTime.Equal(matches[j].UTCTime) {
			return matches[i].UTCTime.After(matches[j].UTCTime)
		}
		return matches[i].ID > matches[j].ID
	})
}

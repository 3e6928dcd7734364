package predict

import (
	"testing"
	"time"
)

var kickoffBase = time.Date(2025, 9, 1, 15, 0, 0, 0, time.UTC)

// resetConfig restores the default configuration after a test that
// mutates the global.
func resetConfig(t *testing.T) {
	t.Helper()
	Config = DefaultEngineConfig()
	t.Cleanup(func() { Config = DefaultEngineConfig() })
}

// finishedMatch builds a finished match with the given score and every
// statistic left unknown.
func finishedMatch(id, home, away int64, kickoff time.Time, homeGoals, awayGoals int) *Match {
	m := NewScheduledMatch(id, home, away, "L1", 0, kickoff)
	m.Finished = true
	m.HomeGoals = homeGoals
	m.AwayGoals = awayGoals
	return m
}

// seedStore saves the matches into a fresh memory store.
func seedStore(t *testing.T, matches ...*Match) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	for _, m := range matches {
		if err := store.SaveMatch(m); err != nil {
			t.Fatalf("failed to seed match %d: %v", m.ID, err)
		}
	}
	return store
}

// daysBefore returns a kickoff n days before the base kickoff.
func daysBefore(n int) time.Time {
	return kickoffBase.AddDate(0, 0, -n)
}

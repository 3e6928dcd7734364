package predict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleOverUnderPicks(t *testing.T) {
	m := finishedMatch(1, 10, 20, daysBefore(1), 2, 1)
	m.HomeCorners, m.AwayCorners = 7, 5 // 12 total

	over := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Over", Line: 10.5}
	under := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Under", Line: 10.5}

	hit, settled := settle(over, m)
	assert.True(t, settled)
	assert.True(t, hit, "12 corners beats a 10.5 line")

	hit, settled = settle(under, m)
	assert.True(t, settled)
	assert.False(t, hit)
}

func TestSettleSideOverPicks(t *testing.T) {
	m := finishedMatch(1, 10, 20, daysBefore(1), 2, 1)
	m.HomeCorners, m.AwayCorners = 8, 2

	home := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Home Over", Line: 6.5}
	away := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Away Over", Line: 3.5}

	hit, settled := settle(home, m)
	assert.True(t, settled)
	assert.True(t, hit, "Eight home corners beats a 6.5 line")

	hit, settled = settle(away, m)
	assert.True(t, settled)
	assert.False(t, hit, "Two away corners falls short of 3.5")
}

func TestSettleSkipsMissingStatistics(t *testing.T) {
	m := finishedMatch(1, 10, 20, daysBefore(1), 2, 1) // corners never recorded

	pick := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Over", Line: 9.5}
	_, settled := settle(pick, m)
	assert.False(t, settled, "Unrecorded statistics cannot settle a pick")
}

func TestSettleSkipsUnfinishedMatch(t *testing.T) {
	m := NewScheduledMatch(1, 10, 20, "L1", 1, kickoffBase)
	pick := Opportunity{Family: FamilyOutcome, Category: CategoryOutcome, Selection: "1"}
	_, settled := settle(pick, m)
	assert.False(t, settled)
}

func TestSettleOutcomeAndDominance(t *testing.T) {
	winToNil := finishedMatch(1, 10, 20, daysBefore(1), 2, 0)
	winDirty := finishedMatch(2, 10, 20, daysBefore(1), 3, 1)

	result := Opportunity{Family: FamilyOutcome, Category: CategoryOutcome, Selection: "1"}
	dominance := Opportunity{Family: FamilyOutcome, Category: CategoryDominance, Selection: "1"}

	hit, _ := settle(result, winDirty)
	assert.True(t, hit, "A plain result pick only needs the win")

	hit, _ = settle(dominance, winDirty)
	assert.False(t, hit, "Win to nil fails when the opponent scores")

	hit, _ = settle(dominance, winToNil)
	assert.True(t, hit)
}

func TestSettleStatDominance(t *testing.T) {
	m := finishedMatch(1, 10, 20, daysBefore(1), 0, 2)
	m.HomeShotsOnTarget, m.AwayShotsOnTarget = 9, 3

	// The home side lost the match but won the shot count.
	pick := Opportunity{Family: FamilyShotsOnTarget, Category: CategoryDominance, Selection: "1"}
	hit, settled := settle(pick, m)
	assert.True(t, settled)
	assert.True(t, hit, "Stat dominance settles on the stat, not the scoreline")

	pick.Selection = "2"
	hit, _ = settle(pick, m)
	assert.False(t, hit)

	blind := finishedMatch(2, 10, 20, daysBefore(1), 0, 2)
	_, settled = settle(pick, blind)
	assert.False(t, settled, "Missing shot counts cannot settle the pick")
}

func TestSettleBTTS(t *testing.T) {
	bothScored := finishedMatch(1, 10, 20, daysBefore(1), 2, 1)
	shutout := finishedMatch(2, 10, 20, daysBefore(1), 2, 0)

	gg := Opportunity{Family: FamilyGoal, Category: CategoryBTTS, Selection: "GG"}
	ng := Opportunity{Family: FamilyGoal, Category: CategoryBTTS, Selection: "NG"}

	hit, _ := settle(gg, bothScored)
	assert.True(t, hit)
	hit, _ = settle(gg, shutout)
	assert.False(t, hit)
	hit, _ = settle(ng, shutout)
	assert.True(t, hit)
}

func TestSettleValueBySelection(t *testing.T) {
	m := finishedMatch(1, 10, 20, daysBefore(1), 2, 1)

	// Value picks in the Goal family settle by what was selected, not by
	// an implied line.
	gg := Opportunity{Family: FamilyGoal, Category: CategoryValue, Selection: "GG", Line: -1}
	over := Opportunity{Family: FamilyGoal, Category: CategoryValue, Selection: "Over", Line: 2.5}
	one := Opportunity{Family: FamilyOutcome, Category: CategoryValue, Selection: "1", Line: -1}

	hit, _ := settle(gg, m)
	assert.True(t, hit, "Both sides scored")
	hit, _ = settle(over, m)
	assert.True(t, hit, "Three goals beat 2.5")
	hit, _ = settle(one, m)
	assert.True(t, hit)

	shutout := finishedMatch(2, 10, 20, daysBefore(1), 1, 0)
	hit, _ = settle(gg, shutout)
	assert.False(t, hit)
	hit, _ = settle(over, shutout)
	assert.False(t, hit)
}

func TestTrackerUpdatesProfileAndInvalidatesCache(t *testing.T) {
	resetConfig(t)
	store := NewMemoryStore()
	cache := NewProfileCache(store, time.Hour)
	tracker := NewAccuracyTracker(store, cache)

	// Warm the cache while the direction has no history
	assert.Equal(t, 1.0, cache.Multiplier(FamilyCorners, "Over"), "No history is neutral")

	m := finishedMatch(1, 10, 20, daysBefore(1), 2, 1)
	m.HomeCorners, m.AwayCorners = 7, 5

	pick := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Over", Line: 10.5}
	require.NoError(t, tracker.Update(pick, m))

	profile, err := store.Profile(ProfileKey(FamilyCorners, "Over"))
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 1, profile.Evaluated)
	assert.Equal(t, 1, profile.Hits)

	// The cache must have been invalidated by the write: a long TTL
	// would otherwise still serve the empty profile.
	got, err := cache.Get(ProfileKey(FamilyCorners, "Over"))
	require.NoError(t, err)
	require.NotNil(t, got, "Cache serves the fresh profile after invalidation")
	assert.Equal(t, 1, got.Evaluated)
}

func TestTrackerKeysProfilesByDirection(t *testing.T) {
	resetConfig(t)
	store := NewMemoryStore()
	tracker := NewAccuracyTracker(store, nil)

	m := finishedMatch(1, 10, 20, daysBefore(1), 2, 1)
	m.HomeCorners, m.AwayCorners = 7, 5 // 12 total

	over := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Over", Line: 10.5}
	under := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Under", Line: 10.5}
	require.NoError(t, tracker.Update(over, m))  // hit
	require.NoError(t, tracker.Update(under, m)) // miss

	overProfile, err := store.Profile(ProfileKey(FamilyCorners, "Over"))
	require.NoError(t, err)
	require.NotNil(t, overProfile)
	assert.Equal(t, 1, overProfile.Hits, "The Over record is its own ledger")

	underProfile, err := store.Profile(ProfileKey(FamilyCorners, "Under"))
	require.NoError(t, err)
	require.NotNil(t, underProfile)
	assert.Zero(t, underProfile.Hits, "The failed Under never pollutes the Over rate")
	assert.Equal(t, 1, underProfile.Evaluated)
}

func TestTrackerSettlesTotalsAtReferenceLine(t *testing.T) {
	resetConfig(t)
	store := NewMemoryStore()
	tracker := NewAccuracyTracker(store, nil)

	m := finishedMatch(1, 10, 20, daysBefore(1), 2, 1)
	m.HomeCorners, m.AwayCorners = 5, 4 // 9 total

	// The pick's own line would win, but the sweep rebenchmarks the
	// direction at the family reference line, where 9 corners loses.
	pick := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Over", Line: 8.5}
	params := DefaultMarketParams()[FamilyCorners] // reference 9.5
	require.NoError(t, tracker.UpdateAtReference(pick, m, params))

	profile, err := store.Profile(ProfileKey(FamilyCorners, "Over"))
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 1, profile.Evaluated)
	assert.Zero(t, profile.Hits, "9 corners does not beat the 9.5 reference")
}

func TestTrackerIgnoresUnsettleablePicks(t *testing.T) {
	resetConfig(t)
	store := NewMemoryStore()
	tracker := NewAccuracyTracker(store, nil)

	m := finishedMatch(1, 10, 20, daysBefore(1), 2, 1) // no corner data
	pick := Opportunity{Family: FamilyCorners, Category: CategoryOverUnder, Selection: "Over", Line: 9.5}
	require.NoError(t, tracker.Update(pick, m))

	profile, err := store.Profile(ProfileKey(FamilyCorners, "Over"))
	require.NoError(t, err)
	assert.Nil(t, profile, "Unsettleable picks leave no trace")
}

func TestMultiplierBands(t *testing.T) {
	resetConfig(t)
	cases := []struct {
		hits, evaluated int
		expected        float64
	}{
		{3, 10, 0.8},  // 30%
		{5, 10, 1.0},  // 50%
		{7, 10, 1.1},  // 70%
		{9, 10, 1.25}, // 90%
		{8, 10, 1.25}, // 80% boundary belongs to the top band
		{4, 10, 1.0},  // 40% boundary escapes the penalty
	}
	for _, tc := range cases {
		store := NewMemoryStore()
		require.NoError(t, store.SaveProfile(&AccuracyProfile{
			Market: ProfileKey(FamilyGoal, "Over"), Evaluated: tc.evaluated, Hits: tc.hits, UpdatedAt: kickoffBase,
		}))
		cache := NewProfileCache(store, time.Hour)
		assert.Equal(t, tc.expected, cache.Multiplier(FamilyGoal, "Over"),
			"hit rate %d/%d", tc.hits, tc.evaluated)
	}
}

func TestProfileCacheTTLExpiry(t *testing.T) {
	resetConfig(t)
	store := NewMemoryStore()
	cache := NewProfileCache(store, time.Minute)

	now := kickoffBase
	cache.now = func() time.Time { return now }

	key := ProfileKey(FamilyGoal, "Over")
	got, err := cache.Get(key)
	require.NoError(t, err)
	assert.Nil(t, got)

	// A write that bypasses Invalidate is invisible until the TTL lapses
	require.NoError(t, store.SaveProfile(&AccuracyProfile{
		Market: key, Evaluated: 4, Hits: 2, UpdatedAt: now,
	}))

	got, err = cache.Get(key)
	require.NoError(t, err)
	assert.Nil(t, got, "Within the TTL the cached absence still holds")

	now = now.Add(2 * time.Minute)
	got, err = cache.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got, "After expiry the store is consulted again")
	assert.Equal(t, 4, got.Evaluated)
}

func TestProfileRejectsImpossibleCounts(t *testing.T) {
	p := &AccuracyProfile{Market: ProfileKey(FamilyGoal, "Over"), Evaluated: 2, Hits: 5, UpdatedAt: kickoffBase}
	assert.Error(t, p.BeforeSave(), "More hits than evaluations is corrupt")
}

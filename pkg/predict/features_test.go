package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeatureEngine(store *MemoryStore, t *testing.T) *FeatureEngine {
	t.Helper()
	rt := NewRatingTracker(store)
	require.NoError(t, rt.Replay(), "Rating replay must succeed before computing features")
	return NewFeatureEngine(store, rt, NewDerbyRegistry())
}

func TestFeaturesDefaultsWithoutHistory(t *testing.T) {
	resetConfig(t)
	store := NewMemoryStore()
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home, away, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	for _, row := range []*FeatureRow{home, away} {
		assert.Equal(t, Config.DefaultPoints, row.Points, "No history falls back to neutral points")
		assert.Equal(t, Config.DefaultRestDays, row.RestDays)
		assert.Equal(t, Config.RatingDefault, row.Rating)
		assert.Equal(t, Config.DefaultAvgGoals, row.AvgGoalsFor)
		assert.Equal(t, Config.DefaultAvgGoals, row.AvgGoalsAgainst)
		assert.Equal(t, Config.DefaultAvgGoals, row.AvgXG)
		assert.Equal(t, Config.DefaultXGRatio, row.XGRatio)
		assert.Zero(t, row.EffAttack)
		assert.Zero(t, row.EffDefense)
		assert.Zero(t, row.Volatility)
		assert.Equal(t, Config.DefaultPressure, row.PressureIndex)
		assert.Zero(t, row.StartersXG)
		assert.Empty(t, row.FormSequence)
		assert.False(t, row.IsDerby)
	}
}

func TestFeaturesVenueWeightedWindow(t *testing.T) {
	resetConfig(t)

	// Team 10's six most recent matches, newest first:
	//   away win, away win, home loss, away win, home loss, home loss
	// An upcoming home fixture pulls the three home matches plus the two
	// most recent remaining into the aggregates. The displayed form
	// string ignores the venue weighting: it is the five most recent
	// results, oldest to newest.
	store := seedStore(t,
		finishedMatch(1, 10, 31, daysBefore(40), 0, 1), // home loss
		finishedMatch(2, 10, 32, daysBefore(34), 1, 2), // home loss
		finishedMatch(3, 33, 10, daysBefore(28), 0, 2), // away win
		finishedMatch(4, 10, 34, daysBefore(21), 0, 3), // home loss
		finishedMatch(5, 35, 10, daysBefore(14), 1, 2), // away win
		finishedMatch(6, 36, 10, daysBefore(7), 0, 1),  // away win
	)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "L,W,L,W,W", home.FormSequence, "Form reads the plain five most recent results, oldest first")
	assert.Equal(t, 6, home.Points, "The venue-weighted window holds three home losses and two away wins")
	assert.Equal(t, 7, home.RestDays, "Rest counts from the latest match regardless of venue")
}

func TestFeaturesNoLookahead(t *testing.T) {
	resetConfig(t)
	store := seedStore(t,
		finishedMatch(1, 10, 30, daysBefore(10), 2, 0),
	)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	before, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	// A result at the fixture's own kickoff and another after it must
	// not leak into the features.
	require.NoError(t, store.SaveMatch(finishedMatch(2, 10, 31, kickoffBase, 0, 5)))
	require.NoError(t, store.SaveMatch(finishedMatch(3, 10, 32, kickoffBase.AddDate(0, 0, 3), 0, 5)))

	after, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, before.FormSequence, after.FormSequence, "Later results must not change earlier features")
	assert.Equal(t, before.Points, after.Points)
	assert.Equal(t, before.AvgGoalsFor, after.AvgGoalsFor)
}

func TestFeaturesRatingBoundedByKickoff(t *testing.T) {
	resetConfig(t)

	// Team 10 wins once before the fixture and once after it; team 20's
	// only match lies entirely after the fixture.
	store := seedStore(t,
		finishedMatch(1, 10, 30, daysBefore(10), 2, 0),
		finishedMatch(2, 10, 31, kickoffBase.AddDate(0, 0, 5), 3, 0),
		finishedMatch(3, 20, 32, kickoffBase.AddDate(0, 0, 6), 4, 0),
	)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home, away, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.InDelta(t, 1515.0, home.Rating, 1e-9, "Only the win before kickoff counts: 1500 + 30 x 0.5")
	assert.Equal(t, Config.RatingDefault, away.Rating, "A team with no earlier matches enters at the default")
	assert.Greater(t, fe.ratings.Rating(10), 1515.0, "The replayed end-of-archive rating does include the later win")
}

func TestFeaturesVolatilityFromGoalsScored(t *testing.T) {
	resetConfig(t)

	// Five home matches scoring 3, 1, 2, 0, 4: the sample deviation of
	// goals for is sqrt(10/4).
	store := seedStore(t,
		finishedMatch(1, 10, 41, daysBefore(35), 3, 0),
		finishedMatch(2, 10, 42, daysBefore(28), 1, 0),
		finishedMatch(3, 10, 43, daysBefore(21), 2, 0),
		finishedMatch(4, 10, 44, daysBefore(14), 0, 0),
		finishedMatch(5, 10, 45, daysBefore(7), 4, 0),
	)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.5811388300841898, home.Volatility, 1e-9)
}

func TestSampleStdDevNeedsTwoPoints(t *testing.T) {
	assert.Zero(t, sampleStdDev(nil))
	assert.Zero(t, sampleStdDev([]float64{3}))
	assert.InDelta(t, 0.7071067811865476, sampleStdDev([]float64{1, 2}), 1e-9)
}

func TestFeaturesSeasonScoping(t *testing.T) {
	resetConfig(t)

	previous := []*Match{
		finishedMatch(1, 10, 41, daysBefore(400), 0, 2),
		finishedMatch(2, 10, 42, daysBefore(390), 0, 3),
	}
	current := []*Match{
		finishedMatch(3, 10, 43, daysBefore(21), 2, 0),
		finishedMatch(4, 10, 44, daysBefore(14), 1, 0),
		finishedMatch(5, 10, 45, daysBefore(7), 3, 1),
	}
	for _, m := range previous {
		m.Season = "2024/2025"
	}
	for _, m := range current {
		m.Season = "2025/2026"
	}
	store := seedStore(t, append(previous, current...)...)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	fixture.Season = "2025/2026"
	home, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "W,W,W", home.FormSequence, "Only current-season matches feed the features")
	assert.Equal(t, 9, home.Points)

	fixture.Season = ""
	home, _, err = fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "L,L,W,W,W", home.FormSequence, "An unscoped fixture sees the whole archive")
}

func TestFeaturesOppositionStrengthAdjustment(t *testing.T) {
	resetConfig(t)

	// Opponents 91..95 each win a warmup match first, so they enter
	// their meeting with team 10 above the default rating. Scoring two
	// goals a game against them is worth more than the raw average.
	var matches []*Match
	var id int64 = 1
	for i := 0; i < 5; i++ {
		opp := int64(91 + i)
		filler := int64(81 + i)
		matches = append(matches,
			finishedMatch(id, opp, filler, daysBefore(60-i), 2, 0),
			finishedMatch(id+1, 10, opp, daysBefore(30-i), 2, 0),
		)
		id += 2
	}
	store := seedStore(t, matches...)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 50, "L1", 1, kickoffBase)
	home, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.Greater(t, home.AvgGoalsFor, 2.0, "Strong opposition inflates the attacking average")
	assert.InDelta(t, 2.0*1.01, home.AvgGoalsFor, 1e-9, "Opponents entering at 1515 give a 1.01 factor")
	assert.Zero(t, home.Volatility, "Identical scoring has no spread")
	assert.Equal(t, "W,W,W,W,W", home.FormSequence)
}

func TestOppositionAdjustmentDegenerateFactor(t *testing.T) {
	resetConfig(t)

	store := seedStore(t, finishedMatch(1, 10, 30, daysBefore(7), 2, 1))
	fe := newTestFeatureEngine(store, t)

	// Force a corrupt-archive opponent rating so the schedule factor
	// goes negative.
	fe.ratings.ratingsBefore[1] = map[int64]float64{30: -300, 10: 1500}

	window, err := store.TeamMatches(10, "", kickoffBase, Config.HistoryPoolSize)
	require.NoError(t, err)
	row := &FeatureRow{AvgGoalsFor: 2, AvgXG: 1.8, AvgGoalsAgainst: 1}

	fe.adjustForOpposition(row, window, 10)

	assert.Equal(t, 1.0, row.AvgGoalsAgainst, "Conceded goals stay unscaled when the factor is non-positive")
	assert.InDelta(t, 2*(1+(-300-1500)/1500.0), row.AvgGoalsFor, 1e-9, "Scored goals still scale")
}

func TestFeaturesHeadToHeadBlend(t *testing.T) {
	resetConfig(t)

	// Five recent home wins at one goal a game, and three older away
	// meetings with team 20 at three goals a game. The meetings stay out
	// of the home-venue window but blend into the averages.
	matches := []*Match{
		finishedMatch(1, 20, 10, daysBefore(90), 0, 3),
		finishedMatch(2, 20, 10, daysBefore(80), 1, 3),
		finishedMatch(3, 20, 10, daysBefore(70), 2, 3),
	}
	for i := 0; i < 5; i++ {
		matches = append(matches, finishedMatch(int64(10+i), 10, int64(41+i), daysBefore(25-i*5), 1, 0))
	}
	store := seedStore(t, matches...)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	// 0.7 of the window average plus 0.3 of the head-to-head average.
	// Window opponents are all fresh, so no opposition adjustment.
	assert.InDelta(t, 0.7*1.0+0.3*3.0, home.AvgGoalsFor, 1e-9,
		"Three meetings are enough to blend head-to-head scoring")
}

func TestHeadToHeadBlendLeavesXGAlone(t *testing.T) {
	resetConfig(t)

	// Same shape as the blend test, but with expected goals recorded
	// everywhere: window xG 1.0 per side, meeting xG 3.0 for team 10.
	matches := []*Match{
		finishedMatch(1, 20, 10, daysBefore(90), 0, 3),
		finishedMatch(2, 20, 10, daysBefore(80), 1, 3),
		finishedMatch(3, 20, 10, daysBefore(70), 2, 3),
	}
	for _, m := range matches {
		m.AwayXG = 3.0
		m.HomeXG = 1.0
	}
	for i := 0; i < 5; i++ {
		m := finishedMatch(int64(10+i), 10, int64(41+i), daysBefore(25-i*5), 1, 0)
		m.HomeXG = 1.0
		m.AwayXG = 1.0
		matches = append(matches, m)
	}
	store := seedStore(t, matches...)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.7*1.0+0.3*3.0, home.AvgGoalsFor, 1e-9, "Goals blend")
	assert.InDelta(t, 1.0, home.AvgXG, 1e-9, "Expected goals keep the window value")
}

func TestFeaturesHeadToHeadSkippedBelowMinimum(t *testing.T) {
	resetConfig(t)

	matches := []*Match{
		finishedMatch(1, 20, 10, daysBefore(90), 0, 3),
		finishedMatch(2, 20, 10, daysBefore(80), 1, 3),
	}
	for i := 0; i < 5; i++ {
		matches = append(matches, finishedMatch(int64(10+i), 10, int64(41+i), daysBefore(25-i*5), 1, 0))
	}
	store := seedStore(t, matches...)
	fe := newTestFeatureEngine(store, t)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home, _, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, home.AvgGoalsFor, 1e-9, "Two meetings are too few for blending")
}

func TestFeaturesDerbyFlag(t *testing.T) {
	resetConfig(t)
	store := seedStore(t, finishedMatch(1, 10, 30, daysBefore(10), 1, 0))

	rt := NewRatingTracker(store)
	require.NoError(t, rt.Replay())
	derbies := NewDerbyRegistry()
	derbies.Register(20, 10, 8)
	fe := NewFeatureEngine(store, rt, derbies)

	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home, away, err := fe.ComputeFeatures(fixture, nil, nil)
	require.NoError(t, err)

	assert.True(t, home.IsDerby, "Registered rivalry flags both rows")
	assert.True(t, away.IsDerby)
}

func TestPressureIndexTiers(t *testing.T) {
	resetConfig(t)
	fe := NewFeatureEngine(NewMemoryStore(), NewRatingTracker(NewMemoryStore()), NewDerbyRegistry())

	cases := []struct {
		name     string
		rating   float64
		points   int
		expected float64
	}{
		{"top side underperforming", 1650, 4, Config.PressureTopUnderperf},
		{"top side cruising", 1650, 12, Config.PressureTopBaseline},
		{"bottom side in crisis", 1400, 1, Config.PressureCrisis},
		{"bottom side scrapping", 1400, 6, Config.PressureLowBaseline},
		{"mid table", 1500, 7, Config.PressureMidBaseline},
	}
	for _, tc := range cases {
		row := &FeatureRow{Rating: tc.rating, Points: tc.points}
		assert.Equal(t, tc.expected, fe.pressureIndex(row), tc.name)
	}
}

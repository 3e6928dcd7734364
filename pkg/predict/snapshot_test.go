package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPossessionFollowsXGShares(t *testing.T) {
	resetConfig(t)
	model := NewBaselineModel()
	fixture := NewScheduledMatch(100, 10, 20, "L1", 1, kickoffBase)
	home := &FeatureRow{AvgXG: 1.5, AvgGoalsFor: 1.5, AvgGoalsAgainst: 1.0, XGRatio: 0.6, PressureIndex: 50}
	away := &FeatureRow{AvgXG: 1.0, AvgGoalsFor: 1.0, AvgGoalsAgainst: 1.2, XGRatio: 0.2, PressureIndex: 50}

	pred, err := model.Predict(fixture, home, away)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, pred.Home.Possession, 1e-9, "0.6 of a 0.8 total is three quarters of the ball")
	assert.InDelta(t, 25.0, pred.Away.Possession, 1e-9)
	assert.InDelta(t, 100.0, pred.Home.Possession+pred.Away.Possession, 1e-9)
}

func TestPossessionSplitDegenerate(t *testing.T) {
	h, a := possessionSplit(&FeatureRow{}, &FeatureRow{})
	assert.Equal(t, 50.0, h, "No share information splits the ball evenly")
	assert.Equal(t, 50.0, a)
}

func TestFormSnapshotRoundTrip(t *testing.T) {
	resetConfig(t)
	row := &FeatureRow{
		TeamID:          10,
		Points:          9,
		RestDays:        4,
		Rating:          1530.5,
		AvgXG:           1.7,
		AvgGoalsFor:     1.9,
		AvgGoalsAgainst: 0.8,
		XGRatio:         0.62,
		EffAttack:       1.1,
		EffDefense:      0.9,
		Volatility:      1.2,
		IsDerby:         true,
		PressureIndex:   70,
		StartersXG:      0.35,
		FormSequence:    "W,D,W,W,L",
	}

	snap := NewFormSnapshot(42, row)
	assert.Equal(t, int64(42), snap.MatchID)
	assert.Equal(t, row, snap.Row(), "A frozen row thaws back to itself")

	store := NewMemoryStore()
	require.NoError(t, store.SaveFormSnapshot(snap))

	loaded, err := store.FormSnapshotFor(42, 10)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap, loaded)

	missing, err := store.FormSnapshotFor(42, 20)
	require.NoError(t, err)
	assert.Nil(t, missing, "The away side was never stored")
}

func TestFormSnapshotNeedsKeys(t *testing.T) {
	assert.Error(t, (&FormSnapshot{TeamID: 10}).BeforeSave())
	assert.Error(t, (&FormSnapshot{MatchID: 42}).BeforeSave())
	assert.NoError(t, (&FormSnapshot{MatchID: 42, TeamID: 10}).BeforeSave())
}

func TestStoreSnapshotsPersistsBothSides(t *testing.T) {
	resetConfig(t)
	store := seedLeague(t)
	rt := NewRatingTracker(store)
	require.NoError(t, rt.Replay())
	fe := NewFeatureEngine(store, rt, NewDerbyRegistry())

	snapshots, err := BuildSnapshots(store, fe)
	require.NoError(t, err)
	require.NoError(t, StoreSnapshots(store, snapshots))

	for _, s := range snapshots {
		homeSnap, err := store.FormSnapshotFor(s.Match.ID, s.Match.HomeTeamID)
		require.NoError(t, err)
		require.NotNil(t, homeSnap)
		assert.Equal(t, s.Home.FormSequence, homeSnap.FormSequence)

		awaySnap, err := store.FormSnapshotFor(s.Match.ID, s.Match.AwayTeamID)
		require.NoError(t, err)
		require.NotNil(t, awaySnap)
		assert.Equal(t, s.Away.Rating, awaySnap.Rating)
	}
}

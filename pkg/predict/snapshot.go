package predict

import (
	"fmt"

	"github.com/mfalcone/ventus/internal/logger"
)

// Snapshot pairs the pre-match feature rows of a finished fixture with
// what actually happened, forming one labelled example for model
// evaluation or training.
type Snapshot struct {
	Match *Match
	Home  *FeatureRow
	Away  *FeatureRow
}

// FormSnapshot is the persisted form of one side's feature row, keyed by
// the match it was computed for and the team it describes.
type FormSnapshot struct {
	MatchID         int64   `column:"match_id" dbtype:"INTEGER" primary:"true"`
	TeamID          int64   `column:"team_id" dbtype:"INTEGER" primary:"true"`
	Points          int     `column:"points" dbtype:"INTEGER"`
	RestDays        int     `column:"rest_days" dbtype:"INTEGER"`
	Rating          float64 `column:"rating" dbtype:"REAL"`
	AvgXG           float64 `column:"avg_xg" dbtype:"REAL"`
	AvgGoalsFor     float64 `column:"avg_goals_for" dbtype:"REAL"`
	AvgGoalsAgainst float64 `column:"avg_goals_against" dbtype:"REAL"`
	XGRatio         float64 `column:"xg_ratio" dbtype:"REAL"`
	EffAttack       float64 `column:"eff_attack" dbtype:"REAL"`
	EffDefense      float64 `column:"eff_defense" dbtype:"REAL"`
	Volatility      float64 `column:"volatility" dbtype:"REAL"`
	IsDerby         bool    `column:"is_derby" dbtype:"INTEGER"`
	PressureIndex   float64 `column:"pressure_index" dbtype:"REAL"`
	StartersXG      float64 `column:"starters_xg" dbtype:"REAL"`
	FormSequence    string  `column:"form_sequence" dbtype:"TEXT"`
}

func (fs *FormSnapshot) GetTableName() string { return "form_snapshots" }
func (fs *FormSnapshot) BeforeSave() error {
	if fs.MatchID == 0 || fs.TeamID == 0 {
		return fmt.Errorf("form snapshot needs a match and a team")
	}
	return nil
}

// NewFormSnapshot freezes a feature row for storage.
func NewFormSnapshot(matchID int64, row *FeatureRow) *FormSnapshot {
	return &FormSnapshot{
		MatchID:         matchID,
		TeamID:          row.TeamID,
		Points:          row.Points,
		RestDays:        row.RestDays,
		Rating:          row.Rating,
		AvgXG:           row.AvgXG,
		AvgGoalsFor:     row.AvgGoalsFor,
		AvgGoalsAgainst: row.AvgGoalsAgainst,
		XGRatio:         row.XGRatio,
		EffAttack:       row.EffAttack,
		EffDefense:      row.EffDefense,
		Volatility:      row.Volatility,
		IsDerby:         row.IsDerby,
		PressureIndex:   row.PressureIndex,
		StartersXG:      row.StartersXG,
		FormSequence:    row.FormSequence,
	}
}

// Row reconstitutes the feature row a snapshot was taken from.
func (fs *FormSnapshot) Row() *FeatureRow {
	return &FeatureRow{
		TeamID:          fs.TeamID,
		Points:          fs.Points,
		RestDays:        fs.RestDays,
		Rating:          fs.Rating,
		AvgXG:           fs.AvgXG,
		AvgGoalsFor:     fs.AvgGoalsFor,
		AvgGoalsAgainst: fs.AvgGoalsAgainst,
		XGRatio:         fs.XGRatio,
		EffAttack:       fs.EffAttack,
		EffDefense:      fs.EffDefense,
		Volatility:      fs.Volatility,
		IsDerby:         fs.IsDerby,
		PressureIndex:   fs.PressureIndex,
		StartersXG:      fs.StartersXG,
		FormSequence:    fs.FormSequence,
	}
}

// BuildSnapshots walks the finished archive in chronological order and
// computes the feature rows each fixture would have had before kickoff,
// using the elevens that actually started. Because every feature query
// is bounded by the fixture's own kickoff, the rows contain no knowledge
// of the match itself or anything later.
func BuildSnapshots(history MatchHistory, engine *FeatureEngine) ([]*Snapshot, error) {
	matches, err := history.AllFinished()
	if err != nil {
		return nil, fmt.Errorf("failed to load archive for snapshots: %w", err)
	}

	snapshots := make([]*Snapshot, 0, len(matches))
	for _, m := range matches {
		home, away, err := engine.ComputeHistoricalFeatures(m)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot match %d: %w", m.ID, err)
		}
		snapshots = append(snapshots, &Snapshot{Match: m, Home: home, Away: away})
	}

	logger.Info("Built feature snapshots", len(snapshots))
	return snapshots, nil
}

// StoreSnapshots persists both sides of every snapshot.
func StoreSnapshots(store SnapshotStore, snapshots []*Snapshot) error {
	for _, s := range snapshots {
		if err := store.SaveFormSnapshot(NewFormSnapshot(s.Match.ID, s.Home)); err != nil {
			return fmt.Errorf("failed to store home snapshot for match %d: %w", s.Match.ID, err)
		}
		if err := store.SaveFormSnapshot(NewFormSnapshot(s.Match.ID, s.Away)); err != nil {
			return fmt.Errorf("failed to store away snapshot for match %d: %w", s.Match.ID, err)
		}
	}
	return nil
}

// EvaluateModel settles a model's 1X2 calls over the snapshot set and
// returns the hit rate. Fixtures where the model refuses to pick a side
// (differential between the draw and win thresholds) are skipped.
func EvaluateModel(model ForecastModel, snapshots []*Snapshot) (hitRate float64, evaluated int, err error) {
	var hits int
	for _, s := range snapshots {
		pred, err := model.Predict(s.Match, s.Home, s.Away)
		if err != nil {
			return 0, 0, fmt.Errorf("model failed on match %d: %w", s.Match.ID, err)
		}

		diff := pred.Home.Goals - pred.Away.Goals
		var selection string
		switch {
		case diff >= Config.WinThreshold:
			selection = "1"
		case diff <= -Config.WinThreshold:
			selection = "2"
		case diff <= Config.DrawThreshold && diff >= -Config.DrawThreshold:
			selection = "X"
		default:
			continue
		}

		evaluated++
		if settleResult(selection, s.Match.Result()) {
			hits++
		}
	}

	if evaluated == 0 {
		return 0, 0, nil
	}
	return float64(hits) / float64(evaluated), evaluated, nil
}

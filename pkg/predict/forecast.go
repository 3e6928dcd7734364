package predict

import "math"

// ForecastModel turns the two feature rows of a fixture into expected
// statistic totals. Implementations must be deterministic: the same
// rows always produce the same prediction.
type ForecastModel interface {
	Predict(fixture *Match, home, away *FeatureRow) (*Prediction, error)
}

// BaselineModel is a closed-form heuristic model. Goals come from each
// side's attacking output against the other's defensive record, with a
// fixed home advantage; the remaining statistics scale off the goal
// expectation and the league-typical totals the market parameters carry.
type BaselineModel struct {
	homeAdvantage float64
	params        map[string]MarketParams
}

func NewBaselineModel() *BaselineModel {
	return &BaselineModel{
		homeAdvantage: 1.15,
		params:        DefaultMarketParams(),
	}
}

func (bm *BaselineModel) Predict(fixture *Match, home, away *FeatureRow) (*Prediction, error) {
	homeGoals := bm.expectedGoals(home, away) * bm.homeAdvantage
	awayGoals := bm.expectedGoals(away, home)

	pred := &Prediction{
		MatchID: fixture.ID,
		Home:    bm.sideStats(homeGoals, home),
		Away:    bm.sideStats(awayGoals, away),
	}
	pred.Home.Possession, pred.Away.Possession = possessionSplit(home, away)
	return pred, nil
}

// possessionSplit divides the ball between the sides in proportion to
// their expected-goals shares, 50/50 when neither side has a share.
func possessionSplit(home, away *FeatureRow) (float64, float64) {
	total := home.XGRatio + away.XGRatio
	if total <= 0 {
		return 50, 50
	}
	homeShare := 100 * home.XGRatio / total
	return homeShare, 100 - homeShare
}

// expectedGoals blends a side's expected and realized attacking output
// against the opponent's concession rate, then applies the finishing
// efficiency correction.
func (bm *BaselineModel) expectedGoals(attacking, defending *FeatureRow) float64 {
	attack := (attacking.AvgXG + attacking.AvgGoalsFor) / 2
	concede := defending.AvgGoalsAgainst

	goals := (attack+concede)/2 + attacking.EffAttack/2
	if attacking.StartersXG > 0 {
		// A confirmed or probable eleven with strong personal xG nudges
		// the expectation toward what those players usually produce.
		goals = 0.8*goals + 0.2*attacking.StartersXG*float64(Config.LineupSize-1)/2
	}
	return math.Max(goals, 0.05)
}

// sideStats scales the non-goal statistics off the goal expectation
// relative to a typical match, using the per-family reference totals.
func (bm *BaselineModel) sideStats(goals float64, row *FeatureRow) PredictedStats {
	refGoalsPerSide := bm.params[FamilyGoal].RefLine / 2
	intensity := clamp(goals/refGoalsPerSide, 0.5, 2.0)

	// Pressure and derbies make matches scrappier without adding much
	// attacking output.
	scrappiness := 0.8 + row.PressureIndex/250
	if row.IsDerby {
		scrappiness *= 1.1
	}

	perSide := func(family string) float64 { return bm.params[family].RefLine / 2 }

	return PredictedStats{
		Goals:         goals,
		ShotsOnTarget: perSide(FamilyShotsOnTarget) * intensity,
		TotalShots:    perSide(FamilyShots) * intensity,
		Corners:       perSide(FamilyCorners) * intensity,
		Cards:         perSide(FamilyCards) * scrappiness,
		Fouls:         perSide(FamilyFouls) * scrappiness,
		Offsides:      perSide(FamilyOffsides) * intensity,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

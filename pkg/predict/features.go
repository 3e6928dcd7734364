package predict

import (
	"fmt"
	"math"
	"strings"

	"github.com/mfalcone/ventus/internal/logger"
)

// FeatureEngine computes the pre-match feature vector for each side of a
// fixture. All inputs come from matches strictly before the fixture's
// kickoff, so computed features are valid for backtesting as well as
// live prediction.
type FeatureEngine struct {
	history MatchHistory
	ratings *RatingTracker
	derbies *DerbyRegistry
	lineups *LineupEstimator
}

func NewFeatureEngine(history MatchHistory, ratings *RatingTracker, derbies *DerbyRegistry) *FeatureEngine {
	return &FeatureEngine{
		history: history,
		ratings: ratings,
		derbies: derbies,
		lineups: NewLineupEstimator(history),
	}
}

// ComputeFeatures returns the home and away feature rows for a fixture.
// Confirmed lineups are optional; pass nil to estimate starters from
// recent minutes.
func (fe *FeatureEngine) ComputeFeatures(fixture *Match, homeLineup, awayLineup *Lineup) (*FeatureRow, *FeatureRow, error) {
	home, err := fe.teamFeatures(fixture, fixture.HomeTeamID, homeLineup, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute home features for match %d: %w", fixture.ID, err)
	}
	away, err := fe.teamFeatures(fixture, fixture.AwayTeamID, awayLineup, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute away features for match %d: %w", fixture.ID, err)
	}
	return home, away, nil
}

// ComputeHistoricalFeatures is the training-data variant: the starters
// are the eleven actually fielded in the match, read from its recorded
// appearances, falling back to the usual estimate when no lineup was
// ever ingested. Everything else stays bounded by kickoff as usual.
func (fe *FeatureEngine) ComputeHistoricalFeatures(m *Match) (*FeatureRow, *FeatureRow, error) {
	home, err := fe.teamFeatures(m, m.HomeTeamID, nil, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute home features for match %d: %w", m.ID, err)
	}
	away, err := fe.teamFeatures(m, m.AwayTeamID, nil, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute away features for match %d: %w", m.ID, err)
	}
	return home, away, nil
}

// defaultFeatures is the neutral row used for a team with no playable
// history at all, such as a newly promoted side at the season opener.
func (fe *FeatureEngine) defaultFeatures(fixture *Match, teamID int64) *FeatureRow {
	return &FeatureRow{
		TeamID:          teamID,
		Points:          Config.DefaultPoints,
		RestDays:        Config.DefaultRestDays,
		Rating:          fe.ratings.RatingAsOf(teamID, fixture.UTCTime),
		AvgXG:           Config.DefaultAvgGoals,
		AvgGoalsFor:     Config.DefaultAvgGoals,
		AvgGoalsAgainst: Config.DefaultAvgGoals,
		XGRatio:         Config.DefaultXGRatio,
		EffAttack:       0,
		EffDefense:      0,
		Volatility:      0,
		IsDerby:         fe.derbies.IsDerby(fixture.HomeTeamID, fixture.AwayTeamID),
		PressureIndex:   Config.DefaultPressure,
		StartersXG:      0,
		FormSequence:    "",
	}
}

func (fe *FeatureEngine) teamFeatures(fixture *Match, teamID int64, confirmed *Lineup, useActualLineup bool) (*FeatureRow, error) {
	pool, err := fe.history.TeamMatches(teamID, fixture.Season, fixture.UTCTime, Config.HistoryPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load match pool: %w", err)
	}

	if len(pool) == 0 {
		logger.Debug("No history, using default features", teamID)
		return fe.defaultFeatures(fixture, teamID), nil
	}

	window := selectFormWindow(pool, teamID, fixture.IsHome(teamID))

	row := &FeatureRow{
		TeamID:  teamID,
		Rating:  fe.ratings.RatingAsOf(teamID, fixture.UTCTime),
		IsDerby: fe.derbies.IsDerby(fixture.HomeTeamID, fixture.AwayTeamID),
	}

	// Rest: days since the most recent match regardless of venue
	row.RestDays = int(fixture.UTCTime.Sub(pool[0].UTCTime).Hours() / 24)

	fe.aggregateWindow(row, window, teamID)
	row.FormSequence = formSequence(pool, teamID)
	fe.adjustForOpposition(row, window, teamID)
	if err := fe.blendHeadToHead(row, fixture, teamID); err != nil {
		return nil, err
	}
	row.PressureIndex = fe.pressureIndex(row)

	starters, err := fe.resolveStarters(fixture, teamID, pool, confirmed, useActualLineup)
	if err != nil {
		return nil, err
	}
	row.StartersXG, err = fe.lineups.StartersAvgXG(starters, fixture.UTCTime)
	if err != nil {
		return nil, err
	}

	return row, nil
}

// resolveStarters picks the eleven whose personal xG feeds the row: the
// recorded starters of an already-played match in training mode, the
// confirmed sheet or a minutes-based estimate otherwise.
func (fe *FeatureEngine) resolveStarters(fixture *Match, teamID int64, pool []*Match, confirmed *Lineup, useActualLineup bool) ([]*PlayerAppearance, error) {
	if useActualLineup {
		starters, err := fe.lineups.ActualStarters(fixture.ID, teamID)
		if err != nil {
			return nil, err
		}
		if len(starters) > 0 {
			return starters, nil
		}
		// No lineup on record, estimate as for a live fixture
	}
	return fe.lineups.ProbableStarters(teamID, fixture.UTCTime, pool, confirmed, nil)
}

// selectFormWindow builds the weighted form window from the pool: up to
// the configured number of matches played at the same venue as the
// upcoming fixture, topped up with the most recent remaining matches,
// re-sorted newest first.
func selectFormWindow(pool []*Match, teamID int64, upcomingHome bool) []*Match {
	var window []*Match
	taken := make(map[int64]bool)

	for _, m := range pool {
		if len(window) >= Config.VenueMatchTarget {
			break
		}
		if m.IsHome(teamID) == upcomingHome {
			window = append(window, m)
			taken[m.ID] = true
		}
	}
	for _, m := range pool {
		if len(window) >= Config.FormWindowSize {
			break
		}
		if !taken[m.ID] {
			window = append(window, m)
			taken[m.ID] = true
		}
	}

	sortMatchesDesc(window)
	return window
}

// formSequence renders the outcomes of the most recent matches in plain
// recency order, oldest first, e.g. "W,L,D,W,W". Unlike the weighted
// window it ignores venue entirely.
func formSequence(pool []*Match, teamID int64) string {
	n := Config.FormWindowSize
	if n > len(pool) {
		n = len(pool)
	}
	outcomes := make([]string, n)
	// The pool is newest first; the display reads oldest to newest
	for i := 0; i < n; i++ {
		outcomes[n-1-i] = string(pool[i].OutcomeFor(teamID))
	}
	return strings.Join(outcomes, ",")
}

// aggregateWindow fills in the raw window aggregates: points, scoring
// averages, efficiency, volatility and the xG share.
func (fe *FeatureEngine) aggregateWindow(row *FeatureRow, window []*Match, teamID int64) {
	n := float64(len(window))

	var points int
	var gfSum, gaSum float64
	var xgFor, xgAgainst float64
	var xgForKnown, xgAgainstKnown int
	var attDiff, defDiff float64
	var goalsFor []float64

	for _, m := range window {
		points += m.PointsFor(teamID)

		gf, ga := m.GoalsFor(teamID)
		gfSum += float64(gf)
		gaSum += float64(ga)
		goalsFor = append(goalsFor, float64(gf))

		own := m.StatsFor(teamID)
		opp := m.StatsFor(m.OpponentOf(teamID))
		if own.XG >= 0 {
			xgFor += own.XG
			xgForKnown++
			attDiff += float64(gf) - own.XG
		}
		if opp.XG >= 0 {
			xgAgainst += opp.XG
			xgAgainstKnown++
			defDiff += opp.XG - float64(ga)
		}
	}

	row.Points = points
	row.AvgGoalsFor = gfSum / n
	row.AvgGoalsAgainst = gaSum / n

	if xgForKnown > 0 {
		row.AvgXG = xgFor / float64(xgForKnown)
		row.EffAttack = attDiff / float64(xgForKnown)
	} else {
		// No xG in the feed, fall back to realized scoring
		row.AvgXG = row.AvgGoalsFor
		row.EffAttack = 0
	}
	if xgAgainstKnown > 0 {
		row.EffDefense = defDiff / float64(xgAgainstKnown)
	}

	// Share of the combined expected goals this team produced
	if xgForKnown > 0 && xgAgainstKnown > 0 && xgFor+xgAgainst > 0 {
		row.XGRatio = xgFor / (xgFor + xgAgainst)
	} else {
		row.XGRatio = Config.DefaultXGRatio
	}

	row.Volatility = sampleStdDev(goalsFor)
}

// sampleStdDev is the n-1 standard deviation, 0 below two data points.
func sampleStdDev(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= n
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / (n - 1))
}

// adjustForOpposition scales the scoring averages by strength of
// schedule: a window full of strong opponents inflates attacking
// numbers and forgives defensive ones.
func (fe *FeatureEngine) adjustForOpposition(row *FeatureRow, window []*Match, teamID int64) {
	if len(window) == 0 {
		return
	}

	var oppSum float64
	for _, m := range window {
		oppSum += fe.ratings.RatingBefore(m.ID, m.OpponentOf(teamID))
	}
	avgOpp := oppSum / float64(len(window))

	factor := 1.0 + (avgOpp-Config.RatingDefault)/Config.RatingDefault

	row.AvgGoalsFor *= factor
	row.AvgXG *= factor
	// Dividing by a non-positive factor would flip the sign of conceded
	// goals, so they stay unscaled when the archive is that degenerate
	if factor > 0 {
		row.AvgGoalsAgainst /= factor
	}
}

// blendHeadToHead mixes head-to-head scoring history into the window
// averages when the sides have met often enough for it to mean anything.
// Only realized goals blend; the xG average keeps its window value.
func (fe *FeatureEngine) blendHeadToHead(row *FeatureRow, fixture *Match, teamID int64) error {
	meetings, err := fe.history.HeadToHead(fixture.HomeTeamID, fixture.AwayTeamID, fixture.UTCTime, Config.H2HLimit)
	if err != nil {
		return fmt.Errorf("failed to load head-to-head history: %w", err)
	}
	if len(meetings) < Config.H2HMinMeetings {
		return nil
	}

	n := float64(len(meetings))
	var gfSum, gaSum float64
	for _, m := range meetings {
		gf, ga := m.GoalsFor(teamID)
		gfSum += float64(gf)
		gaSum += float64(ga)
	}

	w := Config.H2HWeight
	row.AvgGoalsFor = (1-w)*row.AvgGoalsFor + w*(gfSum/n)
	row.AvgGoalsAgainst = (1-w)*row.AvgGoalsAgainst + w*(gaSum/n)
	return nil
}

// pressureIndex rates how much a bad result would hurt, from the team's
// rating tier and its recent points haul. Title contenders on a bad run
// and relegation sides in free fall carry the most pressure.
func (fe *FeatureEngine) pressureIndex(row *FeatureRow) float64 {
	switch {
	case row.Rating >= Config.TopRatingTier:
		if row.Points < Config.PressurePointsPlateau {
			return Config.PressureTopUnderperf
		}
		return Config.PressureTopBaseline
	case row.Rating <= Config.LowRatingTier:
		if row.Points < Config.PressurePointsCrisis {
			return Config.PressureCrisis
		}
		return Config.PressureLowBaseline
	default:
		return Config.PressureMidBaseline
	}
}

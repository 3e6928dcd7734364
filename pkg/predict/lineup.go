package predict

import (
	"fmt"
	"sort"
	"time"

	"github.com/mfalcone/ventus/internal/logger"
)

// LineupEstimator works out who is likely to start a fixture and what
// attacking output those starters usually produce. Every lookup is
// bounded by the fixture's kickoff so estimates stay valid for
// backtesting.
type LineupEstimator struct {
	history MatchHistory
}

func NewLineupEstimator(history MatchHistory) *LineupEstimator {
	return &LineupEstimator{history: history}
}

// ActualStarters returns the players recorded as starting the given
// match. Empty when no appearance data was ever ingested for it.
func (le *LineupEstimator) ActualStarters(matchID, teamID int64) ([]*PlayerAppearance, error) {
	apps, err := le.history.Appearances(matchID, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load appearances for match %d: %w", matchID, err)
	}
	var starters []*PlayerAppearance
	for _, a := range apps {
		if a.Starter {
			starters = append(starters, a)
		}
	}
	return starters, nil
}

// ProbableStarters returns the expected starting eleven for a team ahead
// of a fixture kicking off at asOf. If a confirmed team sheet is given
// it wins outright. Otherwise the eleven is estimated from minutes
// played over the team's recent matches, constrained to a plausible
// skeleton: one goalkeeper, at least three defenders, three midfielders
// and one forward, with the remaining slots going to whoever has played
// the most. Players marked unavailable are never picked.
func (le *LineupEstimator) ProbableStarters(teamID int64, asOf time.Time, recent []*Match, confirmed *Lineup, unavailable map[int64]bool) ([]*PlayerAppearance, error) {
	if confirmed != nil && confirmed.Confirmed && len(confirmed.PlayerIDs) > 0 {
		return le.resolveConfirmed(teamID, asOf, confirmed)
	}

	lookback := Config.MinutesLookback
	if lookback > len(recent) {
		lookback = len(recent)
	}

	// Aggregate minutes per player over the lookback window, keeping the
	// most recent appearance as the canonical record of name/position.
	type tally struct {
		latest  *PlayerAppearance
		minutes int
	}
	totals := make(map[int64]*tally)
	for i := 0; i < lookback; i++ {
		apps, err := le.history.Appearances(recent[i].ID, teamID)
		if err != nil {
			return nil, fmt.Errorf("failed to load appearances for match %d: %w", recent[i].ID, err)
		}
		for _, a := range apps {
			if unavailable[a.PlayerID] {
				continue
			}
			t, ok := totals[a.PlayerID]
			if !ok {
				t = &tally{latest: a}
				totals[a.PlayerID] = t
			}
			t.minutes += a.Minutes
		}
	}

	if len(totals) == 0 {
		return nil, nil
	}

	candidates := make([]*tally, 0, len(totals))
	for _, t := range totals {
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].minutes != candidates[j].minutes {
			return candidates[i].minutes > candidates[j].minutes
		}
		return candidates[i].latest.PlayerID < candidates[j].latest.PlayerID
	})

	// First pass fills the positional skeleton, second pass tops up to
	// eleven by raw minutes.
	need := map[Position]int{
		PositionGK: 1,
		PositionDF: Config.MinDefenders,
		PositionMF: Config.MinMidfielders,
		PositionFW: Config.MinForwards,
	}
	picked := make(map[int64]bool)
	var eleven []*PlayerAppearance

	for _, t := range candidates {
		if need[t.latest.Position] > 0 {
			need[t.latest.Position]--
			picked[t.latest.PlayerID] = true
			eleven = append(eleven, t.latest)
		}
	}
	for _, t := range candidates {
		if len(eleven) >= Config.LineupSize {
			break
		}
		if picked[t.latest.PlayerID] {
			continue
		}
		// Never field a second goalkeeper
		if t.latest.Position == PositionGK {
			continue
		}
		picked[t.latest.PlayerID] = true
		eleven = append(eleven, t.latest)
	}

	if len(eleven) < Config.LineupSize {
		logger.Debug("Probable lineup is short", teamID, len(eleven))
	}
	return eleven, nil
}

func (le *LineupEstimator) resolveConfirmed(teamID int64, asOf time.Time, confirmed *Lineup) ([]*PlayerAppearance, error) {
	// Resolve each confirmed player ID to their most recent appearance so
	// downstream xG lookups have a record to start from.
	var eleven []*PlayerAppearance
	for _, pid := range confirmed.PlayerIDs {
		apps, err := le.history.PlayerAppearances(pid, asOf, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve confirmed starter %d: %w", pid, err)
		}
		if len(apps) > 0 && apps[0].TeamID == teamID {
			eleven = append(eleven, apps[0])
			continue
		}
		// A debutant has no appearance history; carry a stub so the
		// eleven stays complete.
		eleven = append(eleven, &PlayerAppearance{PlayerID: pid, TeamID: teamID, XG: -1})
	}
	return eleven, nil
}

// StartersAvgXG averages the recent personal xG of the given starters,
// looking only at appearances strictly before asOf. Each starter
// contributes the mean of their known xG values over their last few
// appearances; starters with no xG data at all are left out. Returns 0
// when nobody has data.
func (le *LineupEstimator) StartersAvgXG(starters []*PlayerAppearance, asOf time.Time) (float64, error) {
	var sum float64
	var contributors int

	for _, starter := range starters {
		apps, err := le.history.PlayerAppearances(starter.PlayerID, asOf, Config.PlayerXGWindow)
		if err != nil {
			return 0, fmt.Errorf("failed to load xG history for player %d: %w", starter.PlayerID, err)
		}

		var playerSum float64
		var known int
		for _, a := range apps {
			if a.XG >= 0 {
				playerSum += a.XG
				known++
			}
		}
		if known > 0 {
			sum += playerSum / float64(known)
			contributors++
		}
	}

	if contributors == 0 {
		return 0, nil
	}
	return sum / float64(contributors), nil
}

// FormationOf renders the defender-midfielder-forward shape of a
// starting eleven, e.g. "4-3-3". The goalkeeper is implied.
func FormationOf(starters []*PlayerAppearance) string {
	var df, mf, fw int
	for _, p := range starters {
		switch p.Position {
		case PositionDF:
			df++
		case PositionMF:
			mf++
		case PositionFW:
			fw++
		}
	}
	return fmt.Sprintf("%d-%d-%d", df, mf, fw)
}

package predict

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// RatingTracker maintains per-team strength ratings built by replaying the
// finished match archive in chronological order. Replaying the same
// archive always produces the same ratings, there is no hidden state.
type RatingTracker struct {
	history MatchHistory
	ratings map[int64]float64
	// ratingsBefore[matchID][teamID] is the rating each side carried
	// into that match, captured during replay for lookahead-free
	// feature computation.
	ratingsBefore map[int64]map[int64]float64
	// timeline[teamID] holds the team's rating after each of its
	// matches, in kickoff order, so a rating can be reconstructed for
	// any instant without replaying.
	timeline map[int64][]ratingPoint
}

type ratingPoint struct {
	at     time.Time
	rating float64
}

func NewRatingTracker(history MatchHistory) *RatingTracker {
	return &RatingTracker{
		history:       history,
		ratings:       make(map[int64]float64),
		ratingsBefore: make(map[int64]map[int64]float64),
		timeline:      make(map[int64][]ratingPoint),
	}
}

// expectedScore is the standard logistic expectation for a rating gap.
func expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// Replay rebuilds every rating from scratch off the finished archive.
// Matches are processed in kickoff order with ID as tiebreak, so the
// result is deterministic for a given archive.
func (rt *RatingTracker) Replay() error {
	rt.ratings = make(map[int64]float64)
	rt.ratingsBefore = make(map[int64]map[int64]float64)
	rt.timeline = make(map[int64][]ratingPoint)

	matches, err := rt.history.AllFinished()
	if err != nil {
		return fmt.Errorf("failed to load match archive for rating replay: %w", err)
	}

	for _, m := range matches {
		result := m.Result()
		if result == nil {
			continue
		}

		home := rt.Rating(m.HomeTeamID)
		away := rt.Rating(m.AwayTeamID)

		rt.ratingsBefore[m.ID] = map[int64]float64{
			m.HomeTeamID: home,
			m.AwayTeamID: away,
		}

		var actual float64
		switch {
		case result.HomeGoals > result.AwayGoals:
			actual = 1.0
		case result.HomeGoals < result.AwayGoals:
			actual = 0.0
		default:
			actual = 0.5
		}

		expected := expectedScore(home, away)
		delta := Config.RatingKFactor * (actual - expected)

		rt.ratings[m.HomeTeamID] = home + delta
		rt.ratings[m.AwayTeamID] = away - delta

		rt.timeline[m.HomeTeamID] = append(rt.timeline[m.HomeTeamID], ratingPoint{at: m.UTCTime, rating: home + delta})
		rt.timeline[m.AwayTeamID] = append(rt.timeline[m.AwayTeamID], ratingPoint{at: m.UTCTime, rating: away - delta})
	}

	return nil
}

// Rating returns the team's current rating, or the default for a team
// never seen in the archive.
func (rt *RatingTracker) Rating(teamID int64) float64 {
	if r, ok := rt.ratings[teamID]; ok {
		return r
	}
	return GetRatingDefault()
}

// RatingAsOf returns the team's most recent rating from matches strictly
// before the given instant. A team with no earlier matches is at the
// default, even if it plays later in the archive.
func (rt *RatingTracker) RatingAsOf(teamID int64, before time.Time) float64 {
	points := rt.timeline[teamID]
	// First point at or after the cutoff; everything before it counts.
	i := sort.Search(len(points), func(i int) bool {
		return !points[i].at.Before(before)
	})
	if i == 0 {
		return GetRatingDefault()
	}
	return points[i-1].rating
}

// RatingBefore returns the rating a team carried into a specific match.
// Falls back to the current rating when the match was not part of the
// replayed archive (e.g. an upcoming fixture).
func (rt *RatingTracker) RatingBefore(matchID, teamID int64) float64 {
	if pair, ok := rt.ratingsBefore[matchID]; ok {
		if r, ok := pair[teamID]; ok {
			return r
		}
	}
	return rt.Rating(teamID)
}

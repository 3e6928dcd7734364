package predict

import "sort"

// Slip is a small accumulator of high-confidence picks across distinct
// fixtures.
type Slip struct {
	Picks []Opportunity
}

// SelectSlip builds a slip from scored opportunities across many
// fixtures: the single best pick per match, matches ranked by that best
// pick, cut off at the configured score floor and slip size. The result
// never contains two picks from the same fixture.
func SelectSlip(opportunities []Opportunity) *Slip {
	bestPerMatch := make(map[int64]Opportunity)
	for _, o := range opportunities {
		best, ok := bestPerMatch[o.MatchID]
		if !ok || o.Score > best.Score {
			bestPerMatch[o.MatchID] = o
		}
	}

	picks := make([]Opportunity, 0, len(bestPerMatch))
	for _, o := range bestPerMatch {
		if o.Score >= Config.SlipMinScore {
			picks = append(picks, o)
		}
	}

	sort.Slice(picks, func(i, j int) bool {
		if picks[i].Score != picks[j].Score {
			return picks[i].Score > picks[j].Score
		}
		return picks[i].MatchID < picks[j].MatchID
	})

	if len(picks) > Config.SlipSize {
		picks = picks[:Config.SlipSize]
	}
	return &Slip{Picks: picks}
}

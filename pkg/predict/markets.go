package predict

import (
	"fmt"
	"math"
	"sort"

	"github.com/mfalcone/ventus/internal/logger"
)

///////////////////////////////////////////////////////////////
////////////////////////// Market families ////////////////////
///////////////////////////////////////////////////////////////

const (
	FamilyGoal          = "Goal"
	FamilyShots         = "Shots"
	FamilyShotsOnTarget = "ShotsOnTarget"
	FamilyCorners       = "Corners"
	FamilyCards         = "Cards"
	FamilyFouls         = "Fouls"
	FamilyOffsides      = "Offsides"
	FamilyOutcome       = "Outcome"
)

const (
	CategoryOverUnder = "OverUnder"
	CategoryOutcome   = "Outcome"
	CategoryDominance = "Dominance"
	CategoryBTTS      = "BTTS"
	CategoryValue     = "Value"
)

// MarketParams tunes over/under scoring for one statistic family.
type MarketParams struct {
	Volatility float64 `yaml:"volatility"` // Scales how fast confidence grows with margin
	MinMargin  float64 `yaml:"min_margin"` // Margin below which a candidate is discarded
	MaxGap     float64 `yaml:"max_gap"`    // Max distance of the prediction from a candidate line
	Step       float64 `yaml:"step"`       // Line spacing (1.0 gives .5 lines, 0.5 gives .25/.75)
	BaseScore  float64 `yaml:"base_score"` // Confidence floor for a barely-qualifying pick
	RefLine    float64 `yaml:"ref_line"`   // Bookmaker main line, used to settle accuracy sweeps
}

// DefaultMarketParams returns the hand-tuned per-family parameters.
func DefaultMarketParams() map[string]MarketParams {
	return map[string]MarketParams{
		FamilyGoal:          {Volatility: 1.0, MinMargin: 0.5, MaxGap: 2.0, Step: 1.0, BaseScore: 50, RefLine: 2.5},
		FamilyShots:         {Volatility: 1.0, MinMargin: 2.0, MaxGap: 5.0, Step: 1.0, BaseScore: 50, RefLine: 24.5},
		FamilyShotsOnTarget: {Volatility: 1.2, MinMargin: 1.5, MaxGap: 4.0, Step: 1.0, BaseScore: 50, RefLine: 8.5},
		FamilyCorners:       {Volatility: 1.1, MinMargin: 1.5, MaxGap: 3.0, Step: 1.0, BaseScore: 50, RefLine: 9.5},
		FamilyCards:         {Volatility: 1.3, MinMargin: 1.0, MaxGap: 2.5, Step: 0.5, BaseScore: 50, RefLine: 4.5},
		FamilyFouls:         {Volatility: 0.8, MinMargin: 2.5, MaxGap: 6.0, Step: 1.0, BaseScore: 50, RefLine: 24.5},
		FamilyOffsides:      {Volatility: 1.4, MinMargin: 1.0, MaxGap: 2.0, Step: 0.5, BaseScore: 50, RefLine: 3.5},
	}
}

// SmartLines returns the bookmaker-style half lines bracketing a
// predicted value: the nearest line below (for an Over) and the next one
// above (for an Under), spaced by step.
func SmartLines(value, step float64) (lower, upper float64) {
	lower = math.Floor((value-step/2)/step)*step + step/2
	upper = lower + step
	return lower, upper
}

///////////////////////////////////////////////////////////////
////////////////////////// Opportunities //////////////////////
///////////////////////////////////////////////////////////////

// Opportunity is one scored betting angle on a fixture.
type Opportunity struct {
	MatchID   int64
	Family    string  // Statistic family, drives dedup and accuracy tracking
	Category  string  // How the pick was produced
	Market    string  // Human-readable label, e.g. "Over 9.5 Corners"
	Selection string  // "Over"/"Under", "Home Over"/"Away Over", "1"/"X"/"2", "GG"/"NG"
	Line      float64 // -1 when the market has no line
	Predicted float64 // Model value the pick is based on
	Score     float64 // Confidence 0..99
	Edge      float64 // Model edge over the bookmaker, value picks only
}

// MarketEngine turns a fixture prediction into a ranked list of scored
// opportunities.
type MarketEngine struct {
	params   map[string]MarketParams
	profiles *ProfileCache
}

// NewMarketEngine builds an engine with the given per-family parameters,
// falling back to the defaults for any family not supplied. Pass a nil
// map to use all defaults, and a nil cache to skip accuracy re-weighting.
func NewMarketEngine(params map[string]MarketParams, profiles *ProfileCache) *MarketEngine {
	merged := DefaultMarketParams()
	for family, p := range params {
		merged[family] = p
	}
	return &MarketEngine{params: merged, profiles: profiles}
}

// Params returns the parameters in force for a family, defaulted when
// the family was never configured.
func (me *MarketEngine) Params(family string) MarketParams {
	if p, ok := me.params[family]; ok {
		return p
	}
	return DefaultMarketParams()[family]
}

// ScoreOpportunities evaluates every market family against the
// prediction and returns the surviving opportunities sorted by score,
// best first. A nil prediction yields an empty slice, never nil.
func (me *MarketEngine) ScoreOpportunities(fixture *Match, pred *Prediction, homeRow, awayRow *FeatureRow, odds *Odds) []Opportunity {
	opportunities := []Opportunity{}
	if pred == nil {
		return opportunities
	}

	opportunities = append(opportunities, me.overUnderPicks(fixture, pred)...)
	opportunities = append(opportunities, me.sideOverPicks(fixture, pred)...)
	opportunities = append(opportunities, me.outcomePicks(fixture, pred)...)
	opportunities = append(opportunities, me.dominancePicks(fixture, pred)...)
	opportunities = append(opportunities, me.bttsPicks(fixture, pred)...)
	opportunities = append(opportunities, me.valuePicks(fixture, pred, odds)...)

	opportunities = me.reweightAndFilter(opportunities)
	opportunities = dedupOpportunities(opportunities)

	sort.Slice(opportunities, func(i, j int) bool {
		if opportunities[i].Score != opportunities[j].Score {
			return opportunities[i].Score > opportunities[j].Score
		}
		return opportunities[i].Market < opportunities[j].Market
	})
	return opportunities
}

// statFamilies lists the over/under families in the order they are
// scored; iteration order elsewhere is irrelevant but tests read nicer.
var statFamilies = []string{
	FamilyGoal, FamilyShots, FamilyShotsOnTarget,
	FamilyCorners, FamilyCards, FamilyFouls, FamilyOffsides,
}

// familyValue reads one family's predicted value from a side's stats.
func familyValue(s *PredictedStats, family string) float64 {
	switch family {
	case FamilyGoal:
		return s.Goals
	case FamilyShots:
		return s.TotalShots
	case FamilyShotsOnTarget:
		return s.ShotsOnTarget
	case FamilyCorners:
		return s.Corners
	case FamilyCards:
		return s.Cards
	case FamilyFouls:
		return s.Fouls
	case FamilyOffsides:
		return s.Offsides
	default:
		return 0
	}
}

func (me *MarketEngine) overUnderPicks(fixture *Match, pred *Prediction) []Opportunity {
	var out []Opportunity

	for _, family := range statFamilies {
		params := me.Params(family)
		value := familyValue(&pred.Home, family) + familyValue(&pred.Away, family)
		if value <= 0 {
			continue
		}

		lower, upper := SmartLines(value, params.Step)

		// Over: prediction must clear the line, but not by so much the
		// bet is trivially one-sided
		if margin := value - lower; lower > 0 && margin >= params.MinMargin && margin <= params.MaxGap {
			out = append(out, Opportunity{
				MatchID:   fixture.ID,
				Family:    family,
				Category:  CategoryOverUnder,
				Market:    fmt.Sprintf("Over %.2f %s", lower, family),
				Selection: "Over",
				Line:      lower,
				Predicted: value,
				Score:     params.BaseScore + margin*params.Volatility*10,
			})
		}
		if margin := upper - value; margin >= params.MinMargin && margin <= params.MaxGap {
			out = append(out, Opportunity{
				MatchID:   fixture.ID,
				Family:    family,
				Category:  CategoryOverUnder,
				Market:    fmt.Sprintf("Under %.2f %s", upper, family),
				Selection: "Under",
				Line:      upper,
				Predicted: value,
				Score:     params.BaseScore + margin*params.Volatility*10,
			})
		}
	}
	return out
}

// sideOverPicks scores each side's individual totals the same way as the
// combined ones, Over only: single-team Unders draw no interest.
func (me *MarketEngine) sideOverPicks(fixture *Match, pred *Prediction) []Opportunity {
	var out []Opportunity

	sides := []struct {
		label     string
		selection string
		stats     *PredictedStats
	}{
		{"Home", "Home Over", &pred.Home},
		{"Away", "Away Over", &pred.Away},
	}

	for _, family := range statFamilies {
		params := me.Params(family)
		for _, side := range sides {
			value := familyValue(side.stats, family)
			if value <= 0 {
				continue
			}
			lower, _ := SmartLines(value, params.Step)
			margin := value - lower
			if lower <= 0 || margin < params.MinMargin || margin > params.MaxGap {
				continue
			}
			out = append(out, Opportunity{
				MatchID:   fixture.ID,
				Family:    family,
				Category:  CategoryOverUnder,
				Market:    fmt.Sprintf("%s Over %.2f %s", side.label, lower, family),
				Selection: side.selection,
				Line:      lower,
				Predicted: value,
				Score:     params.BaseScore + margin*params.Volatility*10,
			})
		}
	}
	return out
}

// outcomePicks derives 1X2 picks from the predicted goal differential,
// plus a win-to-nil style pick when shot dominance backs the favourite.
func (me *MarketEngine) outcomePicks(fixture *Match, pred *Prediction) []Opportunity {
	var out []Opportunity
	diff := pred.Home.Goals - pred.Away.Goals

	switch {
	case diff >= Config.WinThreshold:
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    FamilyOutcome,
			Category:  CategoryOutcome,
			Market:    "Match Result 1",
			Selection: "1",
			Line:      -1,
			Predicted: diff,
			Score:     math.Min(60+diff*25, Config.OutcomeScoreCap),
		})
	case diff <= -Config.WinThreshold:
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    FamilyOutcome,
			Category:  CategoryOutcome,
			Market:    "Match Result 2",
			Selection: "2",
			Line:      -1,
			Predicted: diff,
			Score:     math.Min(60-diff*25, Config.OutcomeScoreCap),
		})
	case math.Abs(diff) <= Config.DrawThreshold:
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    FamilyOutcome,
			Category:  CategoryOutcome,
			Market:    "Match Result X",
			Selection: "X",
			Line:      -1,
			Predicted: diff,
			Score:     math.Min(60+(Config.DrawThreshold-math.Abs(diff))*50, Config.DrawScoreCap),
		})
	}

	// Dominance: a favourite that also owns the shots on target and
	// should keep a clean sheet earns a win-to-nil pick.
	sotGap := pred.Home.ShotsOnTarget - pred.Away.ShotsOnTarget
	if diff >= Config.WinThreshold && sotGap >= Config.SotDominanceGap && pred.Away.Goals < Config.NoGoalLowThreshold {
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    FamilyOutcome,
			Category:  CategoryDominance,
			Market:    "Home Win To Nil",
			Selection: "1",
			Line:      -1,
			Predicted: sotGap,
			Score:     75 + sotGap*2,
		})
	}
	if -diff >= Config.WinThreshold && -sotGap >= Config.SotDominanceGap && pred.Home.Goals < Config.NoGoalLowThreshold {
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    FamilyOutcome,
			Category:  CategoryDominance,
			Market:    "Away Win To Nil",
			Selection: "2",
			Line:      -1,
			Predicted: -sotGap,
			Score:     75 - sotGap*2,
		})
	}
	return out
}

// dominanceFamilies are the stats that support "this side dominates"
// picks. Goals are excluded: the outcome market already covers them.
var dominanceFamilies = []string{
	FamilyShots, FamilyShotsOnTarget, FamilyCorners, FamilyCards, FamilyFouls,
}

// dominancePicks emits a directional pick per stat when one side's
// predicted value clears the other's by more than twice the family's
// minimum margin, scored by the size of the gap.
func (me *MarketEngine) dominancePicks(fixture *Match, pred *Prediction) []Opportunity {
	var out []Opportunity

	for _, family := range dominanceFamilies {
		params := me.Params(family)
		gap := familyValue(&pred.Home, family) - familyValue(&pred.Away, family)

		var selection, label string
		switch {
		case gap > 2*params.MinMargin:
			selection, label = "1", "Home"
		case -gap > 2*params.MinMargin:
			selection, label = "2", "Away"
		default:
			continue
		}

		magnitude := math.Abs(gap)
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    family,
			Category:  CategoryDominance,
			Market:    fmt.Sprintf("%s Most %s", label, family),
			Selection: selection,
			Line:      -1,
			Predicted: magnitude,
			Score:     params.BaseScore + magnitude*params.Volatility*10,
		})
	}
	return out
}

// bttsPicks covers both-teams-to-score and its no-goal mirror. Both
// belong to the Goal family so the dedup allowance treats them like any
// other goal-flavored pick.
func (me *MarketEngine) bttsPicks(fixture *Match, pred *Prediction) []Opportunity {
	var out []Opportunity
	total := pred.Home.Goals + pred.Away.Goals
	lower := math.Min(pred.Home.Goals, pred.Away.Goals)
	higher := math.Max(pred.Home.Goals, pred.Away.Goals)

	if lower > Config.BTTSGoalThreshold {
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    FamilyGoal,
			Category:  CategoryBTTS,
			Market:    "Both Teams To Score",
			Selection: "GG",
			Line:      -1,
			Predicted: lower,
			Score:     65 + (lower-Config.BTTSGoalThreshold)*20,
		})
	} else if lower < Config.NoGoalLowThreshold && higher <= Config.NoGoalOtherMax {
		// The NG pick is really a bet on a quiet match, so it scores by
		// how far the combined total sits below the usual goal line
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    FamilyGoal,
			Category:  CategoryBTTS,
			Market:    "Both Teams To Score: No",
			Selection: "NG",
			Line:      -1,
			Predicted: total,
			Score:     65 + (Config.NoGoalTotalRef-total)*20,
		})
	}
	return out
}

// valuePicks compares model probabilities against bookmaker odds and
// surfaces selections where the model edge clears the threshold.
func (me *MarketEngine) valuePicks(fixture *Match, pred *Prediction, odds *Odds) []Opportunity {
	var out []Opportunity
	if odds == nil {
		return out
	}

	probs := OutcomeProbabilities(pred.Home.Goals, pred.Away.Goals)

	type candidate struct {
		family    string
		market    string
		selection string
		line      float64
		prob      float64
		price     float64
	}
	candidates := []candidate{
		{FamilyOutcome, "Value 1", "1", -1, probs.HomeWin, odds.Home},
		{FamilyOutcome, "Value X", "X", -1, probs.Draw, odds.Draw},
		{FamilyOutcome, "Value 2", "2", -1, probs.AwayWin, odds.Away},
	}
	if odds.Over25 > 1 {
		candidates = append(candidates, candidate{
			FamilyGoal, "Value Over 2.5 Goals", "Over", 2.5,
			OverProbability(pred.Home.Goals, pred.Away.Goals, 2.5), odds.Over25,
		})
	}
	if odds.BTTS > 1 {
		candidates = append(candidates, candidate{
			FamilyGoal, "Value Both Teams To Score", "GG", -1,
			BTTSProbability(pred.Home.Goals, pred.Away.Goals), odds.BTTS,
		})
	}

	for _, c := range candidates {
		if c.price <= 1 {
			continue
		}
		edge := c.prob*c.price - 1
		if edge <= Config.ValueEdgeThreshold {
			continue
		}
		out = append(out, Opportunity{
			MatchID:   fixture.ID,
			Family:    c.family,
			Category:  CategoryValue,
			Market:    c.market,
			Selection: c.selection,
			Line:      c.line,
			Predicted: c.prob,
			Score:     math.Min(60+edge*100, Config.MaxScore),
			Edge:      edge,
		})
	}
	return out
}

// reweightAndFilter applies the per-direction accuracy multiplier,
// clamps every score into [0, MaxScore] and drops low-confidence picks.
func (me *MarketEngine) reweightAndFilter(opportunities []Opportunity) []Opportunity {
	kept := opportunities[:0]
	for _, o := range opportunities {
		if me.profiles != nil {
			o.Score *= me.profiles.Multiplier(o.Family, o.Selection)
		}
		if o.Score > Config.MaxScore {
			o.Score = Config.MaxScore
		}
		if o.Score < 0 {
			o.Score = 0
		}
		if o.Score < Config.MinConfidenceScore {
			logger.Debug("Dropping low-confidence pick", o.Market, o.Score)
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// dedupOpportunities keeps the best-scoring picks per family: two for
// the Outcome and Goal families, which legitimately carry both a result
// and a goals or value angle, one for everything else.
func dedupOpportunities(opportunities []Opportunity) []Opportunity {
	allowance := func(family string) int {
		if family == FamilyOutcome || family == FamilyGoal {
			return 2
		}
		return 1
	}

	sorted := make([]Opportunity, len(opportunities))
	copy(sorted, opportunities)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Market < sorted[j].Market
	})

	counts := make(map[string]int)
	kept := []Opportunity{}
	for _, o := range sorted {
		if counts[o.Family] >= allowance(o.Family) {
			continue
		}
		counts[o.Family]++
		kept = append(kept, o)
	}
	return kept
}

package predict

import (
	"fmt"

	"github.com/mfalcone/ventus/internal/logger"
)

// Engine wires the full pipeline together: ratings replayed off the
// archive, features per fixture, a forecast model, market scoring and
// accuracy bookkeeping.
type Engine struct {
	store    Store
	ratings  *RatingTracker
	derbies  *DerbyRegistry
	features *FeatureEngine
	model    ForecastModel
	markets  *MarketEngine
	tracker  *AccuracyTracker
	odds     OddsSource
}

// NewEngine assembles an engine on the given store. The odds source is
// optional; without one value bets are simply never produced.
func NewEngine(store Store, model ForecastModel, derbies *DerbyRegistry, odds OddsSource) *Engine {
	if derbies == nil {
		derbies = NewDerbyRegistry()
	}
	ratings := NewRatingTracker(store)
	cache := NewProfileCache(store, GetProfileCacheTTL())

	return &Engine{
		store:    store,
		ratings:  ratings,
		derbies:  derbies,
		features: NewFeatureEngine(store, ratings, derbies),
		model:    model,
		markets:  NewMarketEngine(Config.Markets, cache),
		tracker:  NewAccuracyTracker(store, cache),
		odds:     odds,
	}
}

// Ratings exposes the rating tracker, mainly for inspection commands.
func (e *Engine) Ratings() *RatingTracker { return e.ratings }

// Refresh replays the ratings off the current archive. Call after
// ingesting results and before predicting.
func (e *Engine) Refresh() error {
	return e.ratings.Replay()
}

// Predict runs the full pipeline for one upcoming fixture and returns
// the scored opportunities, best first.
func (e *Engine) Predict(fixture *Match) ([]Opportunity, error) {
	home, away, err := e.features.ComputeFeatures(fixture, nil, nil)
	if err != nil {
		return nil, err
	}

	pred, err := e.model.Predict(fixture, home, away)
	if err != nil {
		return nil, fmt.Errorf("model failed on match %d: %w", fixture.ID, err)
	}

	var odds *Odds
	if e.odds != nil {
		odds, err = e.odds.Odds(fixture.ID)
		if err != nil {
			// Odds are an enrichment, not a requirement
			logger.Warn("Could not fetch odds", fixture.ID, err)
			odds = nil
		}
	}

	return e.markets.ScoreOpportunities(fixture, pred, home, away, odds), nil
}

// PredictAll scores every given fixture and builds a slip from the
// combined opportunity list.
func (e *Engine) PredictAll(fixtures []*Match) (map[int64][]Opportunity, *Slip, error) {
	byMatch := make(map[int64][]Opportunity, len(fixtures))
	var all []Opportunity

	for _, fixture := range fixtures {
		opportunities, err := e.Predict(fixture)
		if err != nil {
			return nil, nil, err
		}
		byMatch[fixture.ID] = opportunities
		all = append(all, opportunities...)
	}

	return byMatch, SelectSlip(all), nil
}

// Settle records the outcome of previously issued opportunities against
// their now-finished matches.
func (e *Engine) Settle(opportunities []Opportunity, matches map[int64]*Match) error {
	for _, o := range opportunities {
		m, ok := matches[o.MatchID]
		if !ok || m.Result() == nil {
			continue
		}
		if err := e.tracker.Update(o, m); err != nil {
			return err
		}
	}
	return nil
}

// RunAccuracySweep replays the finished archive: for every match the
// engine recomputes what it would have recommended before kickoff, with
// the actually-fielded elevens, and settles every pick into the accuracy
// profiles, over/under totals at the family reference lines. The updated
// profiles feed the multipliers on the next scoring run.
func (e *Engine) RunAccuracySweep() (settled int, err error) {
	matches, err := e.store.AllFinished()
	if err != nil {
		return 0, fmt.Errorf("failed to load archive for accuracy sweep: %w", err)
	}

	for _, m := range matches {
		home, away, err := e.features.ComputeHistoricalFeatures(m)
		if err != nil {
			return settled, err
		}
		pred, err := e.model.Predict(m, home, away)
		if err != nil {
			return settled, fmt.Errorf("model failed on match %d: %w", m.ID, err)
		}
		for _, o := range e.markets.ScoreOpportunities(m, pred, home, away, nil) {
			if err := e.tracker.UpdateAtReference(o, m, e.markets.Params(o.Family)); err != nil {
				return settled, err
			}
			settled++
		}
	}

	logger.Info("Accuracy sweep settled picks", settled, len(matches))
	return settled, nil
}

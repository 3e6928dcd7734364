package predict

import (
	"fmt"
	"sync"
	"time"

	"github.com/mfalcone/ventus/internal/logger"
)

///////////////////////////////////////////////////////////////
////////////////////////// Profiles ///////////////////////////
///////////////////////////////////////////////////////////////

// AccuracyProfile is the settled-pick record for one market direction,
// keyed as "family:selection" so that, say, Corners Overs and Corners
// Unders earn their multipliers independently.
type AccuracyProfile struct {
	Market    string    `column:"market" dbtype:"TEXT" primary:"true"`
	Evaluated int       `column:"evaluated" dbtype:"INTEGER"`
	Hits      int       `column:"hits" dbtype:"INTEGER"`
	UpdatedAt time.Time `column:"updated_at" dbtype:"TIMESTAMP"`
}

// ProfileKey builds the storage key for a family and direction.
func ProfileKey(family, selection string) string {
	return family + ":" + selection
}

func (p *AccuracyProfile) GetTableName() string { return "accuracy_profiles" }
func (p *AccuracyProfile) BeforeSave() error {
	if p.Market == "" {
		return fmt.Errorf("accuracy profile has no market")
	}
	if p.Hits > p.Evaluated {
		return fmt.Errorf("profile %s has more hits than evaluations", p.Market)
	}
	return nil
}

// Accuracy returns the hit rate, 0 when nothing has been evaluated.
func (p *AccuracyProfile) Accuracy() float64 {
	if p.Evaluated == 0 {
		return 0
	}
	return float64(p.Hits) / float64(p.Evaluated)
}

///////////////////////////////////////////////////////////////
////////////////////////// Profile cache //////////////////////
///////////////////////////////////////////////////////////////

// ProfileCache is a read-through cache over a ProfileStore. Entries
// expire after the configured TTL; Invalidate drops an entry early, and
// the tracker calls it after every write so readers never serve a stale
// multiplier for long.
type ProfileCache struct {
	mu      sync.Mutex
	store   ProfileStore
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	profile *AccuracyProfile // nil means "known absent"
	loaded  time.Time
}

func NewProfileCache(store ProfileStore, ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the profile for a market key, loading it from the store
// on a miss or after expiry. A key with no recorded profile returns nil.
func (c *ProfileCache) Get(market string) (*AccuracyProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[market]; ok && c.now().Sub(entry.loaded) < c.ttl {
		return entry.profile, nil
	}

	profile, err := c.store.Profile(market)
	if err != nil {
		return nil, fmt.Errorf("failed to load accuracy profile %s: %w", market, err)
	}
	c.entries[market] = cacheEntry{profile: profile, loaded: c.now()}
	return profile, nil
}

// Invalidate drops the cached entry for a market key.
func (c *ProfileCache) Invalidate(market string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, market)
}

// Multiplier returns the confidence re-weighting for one direction of a
// family based on its historical hit rate. Directions with no settled
// history are neutral.
func (c *ProfileCache) Multiplier(family, selection string) float64 {
	key := ProfileKey(family, selection)
	profile, err := c.Get(key)
	if err != nil {
		logger.Warn("Falling back to neutral multiplier", key, err)
		return 1.0
	}
	if profile == nil || profile.Evaluated == 0 {
		return 1.0
	}

	switch acc := profile.Accuracy(); {
	case acc < 0.4:
		return 0.8
	case acc < 0.6:
		return 1.0
	case acc < 0.8:
		return 1.1
	default:
		return 1.25
	}
}

///////////////////////////////////////////////////////////////
////////////////////////// Tracker ////////////////////////////
///////////////////////////////////////////////////////////////

// AccuracyTracker settles opportunities against finished matches and
// keeps the per-direction profiles up to date.
type AccuracyTracker struct {
	store ProfileStore
	cache *ProfileCache
}

func NewAccuracyTracker(store ProfileStore, cache *ProfileCache) *AccuracyTracker {
	return &AccuracyTracker{store: store, cache: cache}
}

// Update settles one opportunity against the finished match it was made
// on. Picks that cannot be settled, because the match is unfinished or
// the needed statistic was never recorded, leave the profile untouched.
func (at *AccuracyTracker) Update(opportunity Opportunity, match *Match) error {
	hit, settled := settle(opportunity, match)
	if !settled {
		logger.Debug("Opportunity cannot be settled", opportunity.Market, match.ID)
		return nil
	}
	return at.record(ProfileKey(opportunity.Family, opportunity.Selection), hit)
}

// UpdateAtReference is the batch-sweep variant: Over/Under totals settle
// at the family's fixed reference line rather than the smart line the
// pick carried, so profiles measure the engine's directional call on a
// stable benchmark. Every other category settles exactly as Update does.
func (at *AccuracyTracker) UpdateAtReference(opportunity Opportunity, match *Match, params MarketParams) error {
	if opportunity.Category == CategoryOverUnder &&
		(opportunity.Selection == "Over" || opportunity.Selection == "Under") {
		opportunity.Line = params.RefLine
	}
	return at.Update(opportunity, match)
}

func (at *AccuracyTracker) record(key string, hit bool) error {
	profile, err := at.store.Profile(key)
	if err != nil {
		return fmt.Errorf("failed to load profile %s: %w", key, err)
	}
	if profile == nil {
		profile = &AccuracyProfile{Market: key}
	}

	profile.Evaluated++
	if hit {
		profile.Hits++
	}
	profile.UpdatedAt = time.Now().UTC()

	if err := at.store.SaveProfile(profile); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", key, err)
	}
	if at.cache != nil {
		at.cache.Invalidate(key)
	}
	return nil
}

// settle decides whether a pick won. The second return is false when the
// actual figures needed are unknown.
func settle(o Opportunity, m *Match) (hit bool, settled bool) {
	result := m.Result()
	if result == nil {
		return false, false
	}

	switch o.Category {
	case CategoryOverUnder:
		var actual float64
		var known bool
		switch o.Selection {
		case "Home Over":
			actual, known = actualFamilySide(o.Family, m, true)
		case "Away Over":
			actual, known = actualFamilySide(o.Family, m, false)
		default:
			actual, known = actualFamilyTotal(o.Family, m)
		}
		if !known {
			return false, false
		}
		if o.Selection == "Under" {
			return actual < o.Line, true
		}
		return actual > o.Line, true

	case CategoryOutcome, CategoryValue:
		switch o.Selection {
		case "Over":
			return float64(result.HomeGoals+result.AwayGoals) > o.Line, true
		case "GG":
			return result.HomeGoals > 0 && result.AwayGoals > 0, true
		default:
			return settleResult(o.Selection, result), true
		}

	case CategoryDominance:
		if o.Family == FamilyOutcome {
			// Win to nil: the backed side wins and keeps a clean sheet
			if o.Selection == "1" {
				return result.HomeGoals > result.AwayGoals && result.AwayGoals == 0, true
			}
			return result.AwayGoals > result.HomeGoals && result.HomeGoals == 0, true
		}
		home, homeKnown := actualFamilySide(o.Family, m, true)
		away, awayKnown := actualFamilySide(o.Family, m, false)
		if !homeKnown || !awayKnown {
			return false, false
		}
		if o.Selection == "1" {
			return home > away, true
		}
		return away > home, true

	case CategoryBTTS:
		both := result.HomeGoals > 0 && result.AwayGoals > 0
		if o.Selection == "GG" {
			return both, true
		}
		return !both, true
	}

	return false, false
}

func settleResult(selection string, r *MatchResult) bool {
	switch selection {
	case "1":
		return r.HomeGoals > r.AwayGoals
	case "2":
		return r.AwayGoals > r.HomeGoals
	default:
		return r.HomeGoals == r.AwayGoals
	}
}

// actualFamilyTotal returns the realized combined total for a family,
// with known=false when either side's figure is missing.
func actualFamilyTotal(family string, m *Match) (total float64, known bool) {
	home, homeKnown := actualFamilySide(family, m, true)
	away, awayKnown := actualFamilySide(family, m, false)
	if !homeKnown || !awayKnown {
		return 0, false
	}
	return home + away, true
}

// actualFamilySide returns one side's realized figure for a family,
// with known=false when it was never recorded.
func actualFamilySide(family string, m *Match, home bool) (value float64, known bool) {
	pick := func(h, a int) (float64, bool) {
		v := a
		if home {
			v = h
		}
		if v < 0 {
			return 0, false
		}
		return float64(v), true
	}

	switch family {
	case FamilyGoal:
		return pick(m.HomeGoals, m.AwayGoals)
	case FamilyShots:
		return pick(m.HomeTotalShots, m.AwayTotalShots)
	case FamilyShotsOnTarget:
		return pick(m.HomeShotsOnTarget, m.AwayShotsOnTarget)
	case FamilyCorners:
		return pick(m.HomeCorners, m.AwayCorners)
	case FamilyCards:
		return pick(m.HomeYellowCards, m.AwayYellowCards)
	case FamilyFouls:
		return pick(m.HomeFouls, m.AwayFouls)
	case FamilyOffsides:
		return pick(m.HomeOffsides, m.AwayOffsides)
	}
	return 0, false
}

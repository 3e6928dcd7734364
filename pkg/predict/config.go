package predict

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig contains all configurable parameters that influence feature
// computation and market scoring. This centralizes the magic numbers the
// heuristics depend on so they can be tuned without code changes.
type EngineConfig struct {
	// === RATING TRACKER ===

	RatingDefault float64 `yaml:"rating_default"` // Starting rating for every team (default: 1500.0)
	RatingKFactor float64 `yaml:"rating_k_factor"` // Update step per match (default: 30.0)

	// === FEATURE ENGINE ===

	HistoryPoolSize  int     `yaml:"history_pool_size"`  // Match pool fetched per team to allow venue filtering (default: 15)
	FormWindowSize   int     `yaml:"form_window_size"`   // Matches in the weighted form window (default: 5)
	VenueMatchTarget int     `yaml:"venue_match_target"` // Same-venue matches preferred in the window (default: 3)
	H2HLimit         int     `yaml:"h2h_limit"`          // Head-to-head meetings considered (default: 5)
	H2HMinMeetings   int     `yaml:"h2h_min_meetings"`   // Minimum meetings before H2H blending applies (default: 3)
	H2HWeight        float64 `yaml:"h2h_weight"`         // Weight of H2H averages in the blend (default: 0.3)

	// Defaults used when a team has no history at all
	DefaultPoints   int     `yaml:"default_points"`    // (default: 5)
	DefaultRestDays int     `yaml:"default_rest_days"` // (default: 7)
	DefaultAvgGoals float64 `yaml:"default_avg_goals"` // (default: 1.0)
	DefaultXGRatio  float64 `yaml:"default_xg_ratio"`  // (default: 0.5)
	DefaultPressure float64 `yaml:"default_pressure"`  // (default: 50.0)

	// === PRESSURE / DERBY HEURISTICS ===

	// Rating cutoffs that divide teams into expectation tiers. These were
	// hand tuned rather than derived, hence configurable.
	TopRatingTier float64 `yaml:"top_rating_tier"` // Title-contender cutoff (default: 1600.0)
	LowRatingTier float64 `yaml:"low_rating_tier"` // Relegation-zone cutoff (default: 1450.0)

	PressurePointsPlateau int     `yaml:"pressure_points_plateau"` // Points (of 15) below which a top side is underperforming (default: 7)
	PressurePointsCrisis  int     `yaml:"pressure_points_crisis"`  // Points below which a bottom side is in crisis (default: 3)
	PressureTopUnderperf  float64 `yaml:"pressure_top_underperf"`  // (default: 90.0)
	PressureCrisis        float64 `yaml:"pressure_crisis"`         // (default: 100.0)
	PressureTopBaseline   float64 `yaml:"pressure_top_baseline"`   // (default: 70.0)
	PressureLowBaseline   float64 `yaml:"pressure_low_baseline"`   // (default: 60.0)
	PressureMidBaseline   float64 `yaml:"pressure_mid_baseline"`   // (default: 40.0)

	// === LINEUP ESTIMATION ===

	LineupSize      int `yaml:"lineup_size"`       // Players in a starting eleven (default: 11)
	MinDefenders    int `yaml:"min_defenders"`     // Skeleton constraint (default: 3)
	MinMidfielders  int `yaml:"min_midfielders"`   // Skeleton constraint (default: 3)
	MinForwards     int `yaml:"min_forwards"`      // Skeleton constraint (default: 1)
	MinutesLookback int `yaml:"minutes_lookback"`  // Team matches scanned for minutes played (default: 3)
	PlayerXGWindow  int `yaml:"player_xg_window"`  // Appearances per player for the xG average (default: 5)

	// === MARKET SCORING ===

	WinThreshold  float64 `yaml:"win_threshold"`  // Goal differential beyond which 1 or 2 is favoured (default: 0.6)
	DrawThreshold float64 `yaml:"draw_threshold"` // Goal differential within which X is favoured (default: 0.3)

	SotDominanceGap    float64 `yaml:"sot_dominance_gap"`    // Shots-on-target gap that validates a 1X2 pick (default: 3.0)
	BTTSGoalThreshold  float64 `yaml:"btts_goal_threshold"`  // Per-side goals above which GG triggers (default: 0.9)
	NoGoalLowThreshold float64 `yaml:"no_goal_low_threshold"` // Per-side goals below which NG triggers (default: 0.6)
	NoGoalOtherMax     float64 `yaml:"no_goal_other_max"`    // Opposing-side cap for NG (default: 1.0)
	NoGoalTotalRef     float64 `yaml:"no_goal_total_ref"`    // Total-goals benchmark the NG score measures against (default: 2.0)

	// Per-family market parameters. Families absent here fall back to
	// the built-in defaults.
	Markets map[string]MarketParams `yaml:"markets"`

	MinConfidenceScore float64 `yaml:"min_confidence_score"` // Final filter on opportunity scores (default: 60.0)
	MaxScore           float64 `yaml:"max_score"`            // Hard cap on any score (default: 99.0)
	OutcomeScoreCap    float64 `yaml:"outcome_score_cap"`    // Cap on 1/2 scores (default: 95.0)
	DrawScoreCap       float64 `yaml:"draw_score_cap"`       // Cap on X scores (default: 90.0)

	// === VALUE BET DETECTION ===

	ValueEdgeThreshold float64 `yaml:"value_edge_threshold"` // Minimum model edge over the bookmaker (default: 0.05)
	PoissonGridMax     int     `yaml:"poisson_grid_max"`     // Goals per side in the truncated outcome grid (default: 10)

	// === SLIP SELECTION ===

	SlipSize     int     `yaml:"slip_size"`      // Picks per slip (default: 4)
	SlipMinScore float64 `yaml:"slip_min_score"` // Minimum best-opportunity score per pick (default: 70.0)

	// === CACHING ===

	ProfileCacheTTL time.Duration `yaml:"profile_cache_ttl"` // TTL for accuracy profiles and market config (default: 5m)

	// === STORAGE ===

	DBPath string `yaml:"db_path"` // Location of the sqlite database
}

// DefaultEngineConfig returns the default configuration with all standard values
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		RatingDefault: 1500.0,
		RatingKFactor: 30.0,

		HistoryPoolSize:  15,
		FormWindowSize:   5,
		VenueMatchTarget: 3,
		H2HLimit:         5,
		H2HMinMeetings:   3,
		H2HWeight:        0.3,

		DefaultPoints:   5,
		DefaultRestDays: 7,
		DefaultAvgGoals: 1.0,
		DefaultXGRatio:  0.5,
		DefaultPressure: 50.0,

		TopRatingTier: 1600.0,
		LowRatingTier: 1450.0,

		PressurePointsPlateau: 7,
		PressurePointsCrisis:  3,
		PressureTopUnderperf:  90.0,
		PressureCrisis:        100.0,
		PressureTopBaseline:   70.0,
		PressureLowBaseline:   60.0,
		PressureMidBaseline:   40.0,

		LineupSize:      11,
		MinDefenders:    3,
		MinMidfielders:  3,
		MinForwards:     1,
		MinutesLookback: 3,
		PlayerXGWindow:  5,

		WinThreshold:  0.6,
		DrawThreshold: 0.3,

		SotDominanceGap:    3.0,
		BTTSGoalThreshold:  0.9,
		NoGoalLowThreshold: 0.6,
		NoGoalOtherMax:     1.0,
		NoGoalTotalRef:     2.0,

		MinConfidenceScore: 60.0,
		MaxScore:           99.0,
		OutcomeScoreCap:    95.0,
		DrawScoreCap:       90.0,

		ValueEdgeThreshold: 0.05,
		PoissonGridMax:     10,

		SlipSize:     4,
		SlipMinScore: 70.0,

		ProfileCacheTTL: 5 * time.Minute,

		DBPath: "ventus.db",
	}
}

// Global configuration instance
var Config *EngineConfig

func init() {
	Config = DefaultEngineConfig()
}

// UpdateConfig replaces the global configuration
func UpdateConfig(newConfig *EngineConfig) {
	Config = newConfig
}

// LoadConfig reads a YAML file over the defaults and installs the result
// as the global configuration. Fields absent from the file keep their
// default values.
func LoadConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	Config = config
	return config, nil
}

// ValidateConfig ensures all configuration values are within reasonable ranges
func ValidateConfig(config *EngineConfig) error {
	if config.H2HWeight < 0.0 || config.H2HWeight > 1.0 {
		return fmt.Errorf("H2HWeight must be between 0.0 and 1.0, got: %f", config.H2HWeight)
	}

	if config.FormWindowSize < 1 || config.FormWindowSize > config.HistoryPoolSize {
		return fmt.Errorf("FormWindowSize must be between 1 and HistoryPoolSize, got: %d", config.FormWindowSize)
	}

	if config.RatingKFactor <= 0 {
		return fmt.Errorf("RatingKFactor must be positive, got: %f", config.RatingKFactor)
	}

	if config.DrawThreshold >= config.WinThreshold {
		return fmt.Errorf("DrawThreshold must be below WinThreshold, got: %f >= %f", config.DrawThreshold, config.WinThreshold)
	}

	if config.PoissonGridMax < 3 {
		return fmt.Errorf("PoissonGridMax should be at least 3 to capture realistic scores, got: %d", config.PoissonGridMax)
	}

	if config.MaxScore <= 0 || config.MaxScore > 100 {
		return fmt.Errorf("MaxScore must be in (0, 100], got: %f", config.MaxScore)
	}

	if config.SlipSize < 1 {
		return fmt.Errorf("SlipSize must be at least 1, got: %d", config.SlipSize)
	}

	for family, p := range config.Markets {
		if p.Step <= 0 {
			return fmt.Errorf("market %s has a non-positive line step: %f", family, p.Step)
		}
	}

	return nil
}

// === HELPER FUNCTIONS FOR EASY ACCESS ===

// GetRatingDefault returns the starting rating for unknown teams
func GetRatingDefault() float64 {
	return Config.RatingDefault
}

// GetProfileCacheTTL returns the TTL applied to cached accuracy profiles
func GetProfileCacheTTL() time.Duration {
	return Config.ProfileCacheTTL
}

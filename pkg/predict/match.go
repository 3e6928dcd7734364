package predict

import (
	"fmt"
	"strings"
	"time"
)

///////////////////////////////////////////////////////////////
////////////////////////// Teams //////////////////////////////
///////////////////////////////////////////////////////////////

// Team is a club known to the engine.
type Team struct {
	ID     int64  `column:"id" dbtype:"INTEGER" primary:"true"`
	Name   string `column:"name" dbtype:"TEXT" index:"true"`
	League string `column:"league" dbtype:"TEXT"`
}

func (t *Team) GetTableName() string { return "teams" }
func (t *Team) BeforeSave() error {
	if t.Name == "" {
		return fmt.Errorf("team %d has no name", t.ID)
	}
	return nil
}

///////////////////////////////////////////////////////////////
////////////////////////// Matches ////////////////////////////
///////////////////////////////////////////////////////////////

// Outcome of a finished match from one team's perspective.
type Outcome string

const (
	OutcomeWin  Outcome = "W"
	OutcomeDraw Outcome = "D"
	OutcomeLoss Outcome = "L"
)

// Match is a fixture, scheduled or finished. Result and statistic columns
// use -1 to mean "not available": a scheduled match carries -1 everywhere,
// and a finished match may still carry -1 for stats the provider never
// published. Use Result, StatsFor and the other accessors rather than
// reading the raw columns.
type Match struct {
	ID         int64     `column:"id" dbtype:"INTEGER" primary:"true"`
	HomeTeamID int64     `column:"home_team_id" dbtype:"INTEGER" index:"true"`
	AwayTeamID int64     `column:"away_team_id" dbtype:"INTEGER" index:"true"`
	League     string    `column:"league" dbtype:"TEXT"`
	Season     string    `column:"season" dbtype:"TEXT" index:"true"`
	Round      int       `column:"round" dbtype:"INTEGER"`
	UTCTime    time.Time `column:"utc_time" dbtype:"TIMESTAMP" index:"true"`
	Finished   bool      `column:"finished" dbtype:"BOOLEAN"`

	// Result columns, -1 while the match is scheduled
	HomeGoals int `column:"home_goals" dbtype:"INTEGER"`
	AwayGoals int `column:"away_goals" dbtype:"INTEGER"`

	// Statistic columns, -1 when unknown
	HomeXG            float64 `column:"home_xg" dbtype:"REAL"`
	AwayXG            float64 `column:"away_xg" dbtype:"REAL"`
	HomePossession    float64 `column:"home_possession" dbtype:"REAL"`
	AwayPossession    float64 `column:"away_possession" dbtype:"REAL"`
	HomeShotsOnTarget int     `column:"home_shots_on_target" dbtype:"INTEGER"`
	AwayShotsOnTarget int     `column:"away_shots_on_target" dbtype:"INTEGER"`
	HomeTotalShots    int     `column:"home_total_shots" dbtype:"INTEGER"`
	AwayTotalShots    int     `column:"away_total_shots" dbtype:"INTEGER"`
	HomeCorners       int     `column:"home_corners" dbtype:"INTEGER"`
	AwayCorners       int     `column:"away_corners" dbtype:"INTEGER"`
	HomeFouls         int     `column:"home_fouls" dbtype:"INTEGER"`
	AwayFouls         int     `column:"away_fouls" dbtype:"INTEGER"`
	HomeYellowCards   int     `column:"home_yellow_cards" dbtype:"INTEGER"`
	AwayYellowCards   int     `column:"away_yellow_cards" dbtype:"INTEGER"`
	HomeOffsides      int     `column:"home_offsides" dbtype:"INTEGER"`
	AwayOffsides      int     `column:"away_offsides" dbtype:"INTEGER"`
}

func (m *Match) GetTableName() string { return "matches" }
func (m *Match) BeforeSave() error {
	if m.HomeTeamID == m.AwayTeamID {
		return fmt.Errorf("match %d has the same team on both sides", m.ID)
	}
	if m.Finished && (m.HomeGoals < 0 || m.AwayGoals < 0) {
		return fmt.Errorf("finished match %d is missing a score", m.ID)
	}
	return nil
}

// NewScheduledMatch creates a fixture with every result and statistic
// column set to the unknown sentinel.
func NewScheduledMatch(id, homeID, awayID int64, league string, round int, kickoff time.Time) *Match {
	return &Match{
		ID:         id,
		HomeTeamID: homeID,
		AwayTeamID: awayID,
		League:     league,
		Round:      round,
		UTCTime:    kickoff,
		Finished:   false,

		HomeGoals: -1, AwayGoals: -1,
		HomeXG: -1, AwayXG: -1,
		HomePossession: -1, AwayPossession: -1,
		HomeShotsOnTarget: -1, AwayShotsOnTarget: -1,
		HomeTotalShots: -1, AwayTotalShots: -1,
		HomeCorners: -1, AwayCorners: -1,
		HomeFouls: -1, AwayFouls: -1,
		HomeYellowCards: -1, AwayYellowCards: -1,
		HomeOffsides: -1, AwayOffsides: -1,
	}
}

// MatchResult is the final score of a finished match.
type MatchResult struct {
	HomeGoals int
	AwayGoals int
}

// Result returns the final score, or nil while the match is scheduled.
// Callers must not read scores off a scheduled match any other way.
func (m *Match) Result() *MatchResult {
	if !m.Finished {
		return nil
	}
	return &MatchResult{HomeGoals: m.HomeGoals, AwayGoals: m.AwayGoals}
}

// Involves reports whether the given team plays in this match.
func (m *Match) Involves(teamID int64) bool {
	return m.HomeTeamID == teamID || m.AwayTeamID == teamID
}

// OpponentOf returns the other side of the fixture.
func (m *Match) OpponentOf(teamID int64) int64 {
	if m.HomeTeamID == teamID {
		return m.AwayTeamID
	}
	return m.HomeTeamID
}

// IsHome reports whether the given team is the home side.
func (m *Match) IsHome(teamID int64) bool {
	return m.HomeTeamID == teamID
}

// OutcomeFor returns W/D/L from the given team's perspective.
// Returns "" for a scheduled match.
func (m *Match) OutcomeFor(teamID int64) Outcome {
	r := m.Result()
	if r == nil {
		return ""
	}
	gf, ga := r.HomeGoals, r.AwayGoals
	if !m.IsHome(teamID) {
		gf, ga = ga, gf
	}
	switch {
	case gf > ga:
		return OutcomeWin
	case gf < ga:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

// PointsFor returns 3/1/0 from the given team's perspective, -1 if scheduled.
func (m *Match) PointsFor(teamID int64) int {
	switch m.OutcomeFor(teamID) {
	case OutcomeWin:
		return 3
	case OutcomeDraw:
		return 1
	case OutcomeLoss:
		return 0
	}
	return -1
}

// GoalsFor returns goals scored and conceded from the given team's
// perspective. Both are -1 for a scheduled match.
func (m *Match) GoalsFor(teamID int64) (scored, conceded int) {
	r := m.Result()
	if r == nil {
		return -1, -1
	}
	if m.IsHome(teamID) {
		return r.HomeGoals, r.AwayGoals
	}
	return r.AwayGoals, r.HomeGoals
}

///////////////////////////////////////////////////////////////
////////////////////////// Statistics /////////////////////////
///////////////////////////////////////////////////////////////

// StatLine is one side's normalized match statistics. Fields are -1
// when the underlying data was never recorded.
type StatLine struct {
	XG            float64
	Possession    float64
	ShotsOnTarget int
	TotalShots    int
	Corners       int
	Fouls         int
	YellowCards   int
	Offsides      int
}

// StatsFor returns the stat line from the given team's perspective.
func (m *Match) StatsFor(teamID int64) StatLine {
	if m.IsHome(teamID) {
		return StatLine{
			XG:            m.HomeXG,
			Possession:    m.HomePossession,
			ShotsOnTarget: m.HomeShotsOnTarget,
			TotalShots:    m.HomeTotalShots,
			Corners:       m.HomeCorners,
			Fouls:         m.HomeFouls,
			YellowCards:   m.HomeYellowCards,
			Offsides:      m.HomeOffsides,
		}
	}
	return StatLine{
		XG:            m.AwayXG,
		Possession:    m.AwayPossession,
		ShotsOnTarget: m.AwayShotsOnTarget,
		TotalShots:    m.AwayTotalShots,
		Corners:       m.AwayCorners,
		Fouls:         m.AwayFouls,
		YellowCards:   m.AwayYellowCards,
		Offsides:      m.AwayOffsides,
	}
}

// SetStatsFor writes a stat line onto the match for the given side.
func (m *Match) SetStatsFor(teamID int64, s StatLine) {
	if m.IsHome(teamID) {
		m.HomeXG = s.XG
		m.HomePossession = s.Possession
		m.HomeShotsOnTarget = s.ShotsOnTarget
		m.HomeTotalShots = s.TotalShots
		m.HomeCorners = s.Corners
		m.HomeFouls = s.Fouls
		m.HomeYellowCards = s.YellowCards
		m.HomeOffsides = s.Offsides
		return
	}
	m.AwayXG = s.XG
	m.AwayPossession = s.Possession
	m.AwayShotsOnTarget = s.ShotsOnTarget
	m.AwayTotalShots = s.TotalShots
	m.AwayCorners = s.Corners
	m.AwayFouls = s.Fouls
	m.AwayYellowCards = s.YellowCards
	m.AwayOffsides = s.Offsides
}

// statKeyAliases maps the raw keys seen across providers, including the
// Italian names from the legacy feed, onto canonical names.
var statKeyAliases = map[string]string{
	"possesso":        "possession",
	"possession":      "possession",
	"tiri_porta":      "shots_on_target",
	"shots_on_target": "shots_on_target",
	"tiri_totali":     "total_shots",
	"total_shots":     "total_shots",
	"corner":          "corners",
	"corners":         "corners",
	"falli":           "fouls",
	"fouls":           "fouls",
	"gialli":          "yellow_cards",
	"yellow_cards":    "yellow_cards",
	"fuorigioco":      "offsides",
	"offsides":        "offsides",
	"xg":              "xg",
}

// NormalizeStats converts a raw provider key/value map into a StatLine,
// folding legacy key spellings onto canonical fields. Missing keys leave
// the -1 sentinel in place; unrecognized keys are silently dropped.
func NormalizeStats(raw map[string]float64) StatLine {
	s := StatLine{
		XG: -1, Possession: -1,
		ShotsOnTarget: -1, TotalShots: -1,
		Corners: -1, Fouls: -1,
		YellowCards: -1, Offsides: -1,
	}
	for key, value := range raw {
		canonical, ok := statKeyAliases[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			continue
		}
		switch canonical {
		case "xg":
			s.XG = value
		case "possession":
			s.Possession = value
		case "shots_on_target":
			s.ShotsOnTarget = int(value)
		case "total_shots":
			s.TotalShots = int(value)
		case "corners":
			s.Corners = int(value)
		case "fouls":
			s.Fouls = int(value)
		case "yellow_cards":
			s.YellowCards = int(value)
		case "offsides":
			s.Offsides = int(value)
		}
	}
	return s
}

///////////////////////////////////////////////////////////////
////////////////////////// Lineups ////////////////////////////
///////////////////////////////////////////////////////////////

// Position is a player's role on the pitch.
type Position string

const (
	PositionGK Position = "GK"
	PositionDF Position = "DF"
	PositionMF Position = "MF"
	PositionFW Position = "FW"
)

// PlayerAppearance records one player's participation in one match.
type PlayerAppearance struct {
	ID       int64    `column:"id" dbtype:"INTEGER" primary:"true"`
	MatchID  int64    `column:"match_id" dbtype:"INTEGER" index:"true"`
	TeamID   int64    `column:"team_id" dbtype:"INTEGER" index:"true"`
	PlayerID int64    `column:"player_id" dbtype:"INTEGER" index:"true"`
	Name     string   `column:"name" dbtype:"TEXT"`
	Position Position `column:"position" dbtype:"TEXT"`
	Starter  bool     `column:"starter" dbtype:"BOOLEAN"`
	Minutes  int      `column:"minutes" dbtype:"INTEGER"`
	XG       float64  `column:"xg" dbtype:"REAL"` // -1 when unavailable
}

func (p *PlayerAppearance) GetTableName() string { return "player_appearances" }
func (p *PlayerAppearance) BeforeSave() error {
	if p.Minutes < 0 {
		p.Minutes = 0
	}
	return nil
}

// LineupSource says where a lineup came from.
type LineupSource string

const (
	LineupOfficial  LineupSource = "official"
	LineupEstimated LineupSource = "estimated"
)

// Lineup is the set of players expected or confirmed to start a match
// for one team. Confirmed is true only for an official team sheet.
type Lineup struct {
	MatchID   int64
	TeamID    int64
	Confirmed bool
	Source    LineupSource
	Formation string // e.g. "4-3-3", derived from positions when estimated
	PlayerIDs []int64
}

///////////////////////////////////////////////////////////////
////////////////////////// Features ///////////////////////////
///////////////////////////////////////////////////////////////

// FeatureRow is the full per-team feature vector computed ahead of a
// fixture. This is the input both to market scoring and to any
// downstream forecasting model.
type FeatureRow struct {
	TeamID          int64
	Points          int     // Points over the form window (0..15 at window 5)
	RestDays        int     // Days since the previous match
	Rating          float64 // Rating entering the fixture
	AvgXG           float64
	AvgGoalsFor     float64
	AvgGoalsAgainst float64
	XGRatio         float64 // Share of combined xG produced by this team
	EffAttack       float64 // Goals scored minus xG, per match
	EffDefense      float64 // xG conceded minus goals conceded, per match
	Volatility      float64 // Stddev of per-match goal differentials
	IsDerby         bool
	PressureIndex   float64 // 0..100
	StartersXG      float64 // Avg xG of the probable starting eleven
	FormSequence    string  // e.g. "W,L,D,W,W", oldest to newest
}

///////////////////////////////////////////////////////////////
////////////////////////// Forecasts //////////////////////////
///////////////////////////////////////////////////////////////

// PredictedStats is the model's expected statistic totals for one side.
type PredictedStats struct {
	Goals         float64
	ShotsOnTarget float64
	TotalShots    float64
	Corners       float64
	Cards         float64
	Fouls         float64
	Offsides      float64
	Possession    float64 // Expected share of the ball, 0..100
}

// Prediction is the model output for one fixture.
type Prediction struct {
	MatchID int64
	Home    PredictedStats
	Away    PredictedStats
}

package fpl

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Team is a Premier League club as listed in bootstrap-static.
type Team struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Strength  int    `json:"strength"`
}

// Gameweek is one round of the season.
type Gameweek struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DeadlineTime string `json:"deadline_time"`
	Finished     bool   `json:"finished"`
	IsCurrent    bool   `json:"is_current"`
	IsNext       bool   `json:"is_next"`
	IsPrev       bool   `json:"is_prev"`
}

// Player is a bootstrap-static element with the analytics columns derived
// from it. Missing or unparseable numbers are zero, except
// ChanceOfPlayingNextRound which defaults to 100.
type Player struct {
	ID           int    `json:"id"`
	WebName      string `json:"web_name"`
	FirstName    string `json:"first_name"`
	SecondName   string `json:"second_name"`
	TeamID       int    `json:"team"`
	TeamName     string `json:"team_name"`
	PositionID   int    `json:"element_type"`
	PositionName string `json:"position_name"`

	Price            float64 `json:"price"`
	Value            float64 `json:"value"`
	PointsPerMillion float64 `json:"points_per_million"`

	Form        float64 `json:"form"`
	TotalPoints float64 `json:"total_points"`
	Minutes     float64 `json:"minutes"`
	GoalsScored float64 `json:"goals_scored"`
	Assists     float64 `json:"assists"`
	CleanSheets float64 `json:"clean_sheets"`
	Bonus       float64 `json:"bonus"`

	XG                       float64 `json:"xG"`
	XA                       float64 `json:"xA"`
	Threat                   float64 `json:"threat"`
	Creativity               float64 `json:"creativity"`
	Influence                float64 `json:"influence"`
	SelectedByPercent        float64 `json:"selected_by_percent"`
	TransfersIn              float64 `json:"transfers_in"`
	TransfersOut             float64 `json:"transfers_out"`
	ValueChange              float64 `json:"value_change"`
	ChanceOfPlayingNextRound float64 `json:"chance_of_playing_next_round"`
}

// Fixture is one match from the fixtures endpoint. Event is nil for matches
// that have not been scheduled into a gameweek yet.
type Fixture struct {
	ID              int    `json:"id"`
	Event           *int   `json:"event"`
	KickoffTime     string `json:"kickoff_time,omitempty"`
	TeamH           int    `json:"team_h"`
	TeamA           int    `json:"team_a"`
	TeamHDifficulty *int   `json:"team_h_difficulty"`
	TeamADifficulty *int   `json:"team_a_difficulty"`
	TeamHScore      *int   `json:"team_h_score,omitempty"`
	TeamAScore      *int   `json:"team_a_score,omitempty"`
	Finished        bool   `json:"finished"`
}

// FixtureFDR is an upcoming fixture seen from one team's side.
type FixtureFDR struct {
	Gameweek   int    `json:"gameweek"`
	Opponent   string `json:"opponent"`
	HomeAway   string `json:"home_away"`
	Difficulty int    `json:"difficulty"`
	FDR        string `json:"fdr"`
}

// PlayerSummary is the element-summary document for one player.
type PlayerSummary struct {
	Fixtures    []UpcomingFixture `json:"fixtures"`
	History     []PlayerGameweek  `json:"history"`
	HistoryPast []PastSeason      `json:"history_past"`
}

// UpcomingFixture is a fixture in a player's remaining schedule.
type UpcomingFixture struct {
	ID          int    `json:"id"`
	Event       *int   `json:"event"`
	IsHome      bool   `json:"is_home"`
	Difficulty  int    `json:"difficulty"`
	KickoffTime string `json:"kickoff_time,omitempty"`
}

// PlayerGameweek is a player's record for one round of the current season.
type PlayerGameweek struct {
	Element     int `json:"element"`
	Fixture     int `json:"fixture"`
	Round       int `json:"round"`
	TotalPoints int `json:"total_points"`
	Minutes     int `json:"minutes"`
	GoalsScored int `json:"goals_scored"`
	Assists     int `json:"assists"`
	CleanSheets int `json:"clean_sheets"`
	Bonus       int `json:"bonus"`
	Value       int `json:"value"`
}

// PastSeason is a player's season total from earlier years.
type PastSeason struct {
	SeasonName  string `json:"season_name"`
	TotalPoints int    `json:"total_points"`
	StartCost   int    `json:"start_cost"`
	EndCost     int    `json:"end_cost"`
	Minutes     int    `json:"minutes"`
}

// bootstrapDoc is the subset of bootstrap-static the derived datasets use.
type bootstrapDoc struct {
	LastUpdated  string        `json:"last_updated"`
	Events       []event       `json:"events"`
	Teams        []Team        `json:"teams"`
	ElementTypes []elementType `json:"element_types"`
	Elements     []element     `json:"elements"`
}

type event struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DeadlineTime string `json:"deadline_time"`
	Finished     bool   `json:"finished"`
	IsPrevious   bool   `json:"is_previous"`
	IsCurrent    bool   `json:"is_current"`
	IsNext       bool   `json:"is_next"`
}

type elementType struct {
	ID           int    `json:"id"`
	SingularName string `json:"singular_name"`
}

type element struct {
	ID          int    `json:"id"`
	WebName     string `json:"web_name"`
	FirstName   string `json:"first_name"`
	SecondName  string `json:"second_name"`
	Team        int    `json:"team"`
	ElementType int    `json:"element_type"`
	NowCost     number `json:"now_cost"`

	Form        number `json:"form"`
	TotalPoints number `json:"total_points"`
	Minutes     number `json:"minutes"`
	GoalsScored number `json:"goals_scored"`
	Assists     number `json:"assists"`
	CleanSheets number `json:"clean_sheets"`
	Bonus       number `json:"bonus"`

	ExpectedGoals            number `json:"expected_goals"`
	ExpectedAssists          number `json:"expected_assists"`
	Threat                   number `json:"threat"`
	Creativity               number `json:"creativity"`
	Influence                number `json:"influence"`
	SelectedByPercent        number `json:"selected_by_percent"`
	TransfersIn              number `json:"transfers_in"`
	TransfersOut             number `json:"transfers_out"`
	ValueChange              number `json:"value_change"`
	ChanceOfPlayingNextRound number `json:"chance_of_playing_next_round"`
}

// number decodes the API's loosely typed numeric fields. JSON numbers and
// numeric strings ("7.5") are set; null, "" and anything unparseable are not.
type number struct {
	value float64
	set   bool
}

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (n *number) UnmarshalJSON(b []byte) error {
	*n = number{}

	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*n = number{value: f, set: true}
	return nil
}

// or returns the value, or def when it was not set.
func (n number) or(def float64) float64 {
	if !n.set {
		return def
	}
	return n.value
}

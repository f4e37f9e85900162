package testutil

import "net/http"

// BootstrapStaticJSON is a trimmed bootstrap-static document: three teams,
// two positions, three players and three gameweeks.
const BootstrapStaticJSON = `{
  "last_updated": "2025-08-01T11:58:12Z",
  "events": [
    {"id": 1, "name": "Gameweek 1", "deadline_time": "2025-08-15T17:30:00Z", "finished": true, "is_previous": true, "is_current": false, "is_next": false},
    {"id": 2, "name": "Gameweek 2", "deadline_time": "2025-08-22T17:30:00Z", "finished": false, "is_previous": false, "is_current": true, "is_next": false},
    {"id": 3, "name": "Gameweek 3", "deadline_time": "2025-08-29T17:30:00Z", "finished": false, "is_previous": false, "is_current": false, "is_next": true}
  ],
  "teams": [
    {"id": 1, "name": "Arsenal ", "short_name": "ARS", "strength": 5},
    {"id": 12, "name": "Liverpool", "short_name": " LIV", "strength": 5},
    {"id": 17, "name": "Sunderland", "short_name": "SUN", "strength": 2}
  ],
  "element_types": [
    {"id": 3, "singular_name": "Midfielder", "singular_name_short": "MID"},
    {"id": 4, "singular_name": "Forward", "singular_name_short": "FWD"}
  ],
  "elements": [
    {"id": 302, "web_name": "Salah", "first_name": "Mohamed", "second_name": "Salah", "team": 12, "element_type": 3, "now_cost": 145, "total_points": 30, "form": "7.5", "minutes": 270, "goals_scored": 3, "assists": 2, "clean_sheets": 1, "bonus": 6, "expected_goals": "2.41", "expected_assists": "1.10", "selected_by_percent": "61.2", "chance_of_playing_next_round": null},
    {"id": 7, "web_name": "Saka", "first_name": "Bukayo", "second_name": "Saka", "team": 1, "element_type": 3, "now_cost": 100, "total_points": 18, "form": "4.0", "minutes": 250, "goals_scored": 1, "assists": 2, "clean_sheets": 2, "bonus": 2, "expected_goals": "0.80", "expected_assists": "0.95", "selected_by_percent": "25.0", "chance_of_playing_next_round": 75},
    {"id": 600, "web_name": "Isidor", "first_name": "Wilson", "second_name": "Isidor", "team": 17, "element_type": 4, "now_cost": 0, "total_points": 4, "form": "", "minutes": 45, "goals_scored": 0, "assists": 0, "clean_sheets": 0, "bonus": 0}
  ]
}`

// FixturesJSON is a small fixtures list covering the teams in BootstrapStaticJSON.
const FixturesJSON = `[
  {"id": 1, "event": 1, "team_h": 12, "team_a": 1, "team_h_difficulty": 4, "team_a_difficulty": 5, "finished": true},
  {"id": 2, "event": 2, "team_h": 1, "team_a": 17, "team_h_difficulty": 2, "team_a_difficulty": 5, "finished": false},
  {"id": 3, "event": 3, "team_h": 17, "team_a": 12, "team_h_difficulty": 5, "team_a_difficulty": 2, "finished": false},
  {"id": 4, "event": null, "team_h": 12, "team_a": 17, "team_h_difficulty": 2, "team_a_difficulty": 5, "finished": false}
]`

// PlayerSummaryJSON is an element-summary document for player 302.
const PlayerSummaryJSON = `{
  "fixtures": [{"id": 3, "event": 3, "is_home": false, "difficulty": 2}],
  "history": [
    {"element": 302, "round": 1, "total_points": 12, "minutes": 90},
    {"element": 302, "round": 2, "total_points": 8, "minutes": 90}
  ]
}`

// NewFPL returns a mock serving BootstrapStaticJSON, FixturesJSON and the
// element-summary for player 302.
func NewFPL() *MockFPL {
	m := NewMockFPL()
	m.SetHandler("/bootstrap-static/", NewConditionalHandler(`"bootstrap-v1"`, BootstrapStaticJSON))
	m.SetHandler("/fixtures/", NewConditionalHandler(`"fixtures-v1"`, FixturesJSON))
	m.SetPlayerSummaryResponse(302, MockResponse{
		StatusCode: http.StatusOK,
		Body:       PlayerSummaryJSON,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
	return m
}

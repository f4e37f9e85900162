package fpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestDifficultyLabel(t *testing.T) {
	tests := map[int]string{
		0: "Unknown",
		1: "Easy",
		2: "Medium",
		3: "Hard",
		4: "Very Hard",
		5: "Extreme",
		6: "Unknown",
	}
	for difficulty, want := range tests {
		assert.Equal(t, want, DifficultyLabel(difficulty), "difficulty %d", difficulty)
	}
}

func TestFixturesWithFDR(t *testing.T) {
	teams := []Team{{ID: 1, ShortName: "ARS"}, {ID: 2, ShortName: "AVL"}}

	tests := []struct {
		name     string
		fixtures []Fixture
		limit    int
		want     []FixtureFDR
	}{
		{
			name:     "missing difficulty defaults to hard",
			fixtures: []Fixture{{ID: 1, Event: intPtr(4), TeamH: 1, TeamA: 2}},
			limit:    5,
			want:     []FixtureFDR{{Gameweek: 4, Opponent: "AVL", HomeAway: "Home", Difficulty: 3, FDR: "Hard"}},
		},
		{
			name:     "unknown opponent is skipped",
			fixtures: []Fixture{{ID: 1, Event: intPtr(4), TeamH: 1, TeamA: 50, TeamHDifficulty: intPtr(2)}},
			limit:    5,
			want:     []FixtureFDR{},
		},
		{
			name: "window is twice the gameweek count",
			fixtures: []Fixture{
				{ID: 1, Event: intPtr(1), TeamH: 1, TeamA: 2, TeamHDifficulty: intPtr(2)},
				{ID: 2, Event: intPtr(2), TeamH: 2, TeamA: 1, TeamADifficulty: intPtr(4)},
				{ID: 3, Event: intPtr(3), TeamH: 1, TeamA: 2, TeamHDifficulty: intPtr(1)},
			},
			limit: 1,
			want: []FixtureFDR{
				{Gameweek: 1, Opponent: "AVL", HomeAway: "Home", Difficulty: 2, FDR: "Medium"},
				{Gameweek: 2, Opponent: "AVL", HomeAway: "Away", Difficulty: 4, FDR: "Very Hard"},
			},
		},
		{
			name:     "unscheduled fixture counts toward the window",
			fixtures: []Fixture{
				{ID: 1, TeamH: 1, TeamA: 2},
				{ID: 2, Event: intPtr(2), TeamH: 1, TeamA: 2, TeamHDifficulty: intPtr(2)},
				{ID: 3, Event: intPtr(3), TeamH: 2, TeamA: 1},
			},
			limit: 1,
			want:  []FixtureFDR{{Gameweek: 2, Opponent: "AVL", HomeAway: "Home", Difficulty: 2, FDR: "Medium"}},
		},
		{
			name:     "negative window is empty",
			fixtures: []Fixture{{ID: 1, Event: intPtr(1), TeamH: 1, TeamA: 2}},
			limit:    -1,
			want:     []FixtureFDR{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fixturesWithFDR(tt.fixtures, teams, 1, tt.limit))
		})
	}
}

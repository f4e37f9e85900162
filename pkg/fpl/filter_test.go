package fpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterPlayers(t *testing.T) {
	players := []Player{
		{ID: 1, WebName: "Salah", SecondName: "Salah", PositionName: "Midfielder", TeamName: "Liverpool", Price: 14.5, TotalPoints: 30, Form: 7.5},
		{ID: 2, WebName: "Saka", SecondName: "Saka", PositionName: "Midfielder", TeamName: "Arsenal", Price: 10, TotalPoints: 18, Form: 4},
		{ID: 3, WebName: "Isidor", SecondName: "Isidor", PositionName: "Forward", TeamName: "Sunderland", Price: 5.5, TotalPoints: 4, Form: 0},
		{ID: 4, WebName: "B.Fernandes", SecondName: "Borges Fernandes", PositionName: "Midfielder", TeamName: "Man Utd", Price: 9, TotalPoints: 12, Form: 3},
	}

	tests := []struct {
		name   string
		filter PlayerFilter
		want   []int
	}{
		{"no filter", PlayerFilter{}, []int{1, 2, 3, 4}},
		{"position", PlayerFilter{Positions: []string{"Forward"}}, []int{3}},
		{"team", PlayerFilter{Teams: []string{"Arsenal", "Liverpool"}}, []int{1, 2}},
		{"price range", PlayerFilter{PriceMin: 6, PriceMax: 10}, []int{2, 4}},
		{"points", PlayerFilter{PointsMin: 15}, []int{1, 2}},
		{"form", PlayerFilter{FormMin: 4}, []int{1, 2}},
		{"search web name", PlayerFilter{Search: "SAL"}, []int{1}},
		{"search second name", PlayerFilter{Search: "borges"}, []int{4}},
		{"combined", PlayerFilter{Positions: []string{"Midfielder"}, PriceMax: 12, FormMin: 3.5}, []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []int{}
			for _, p := range FilterPlayers(players, tt.filter) {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFilterOptions(t *testing.T) {
	players := []Player{
		{PositionName: "Midfielder", TeamName: "Liverpool"},
		{PositionName: "Forward", TeamName: "Arsenal"},
		{PositionName: "Midfielder", TeamName: "Arsenal"},
		{},
	}

	positions, teams := FilterOptions(players)
	assert.Equal(t, []string{"Forward", "Midfielder"}, positions)
	assert.Equal(t, []string{"Arsenal", "Liverpool"}, teams)
}

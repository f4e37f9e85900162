package fpl

import (
	"slices"
	"strings"
)

// PlayerFilter narrows a player list. Zero values disable a criterion,
// except PriceMax where zero means no upper bound.
type PlayerFilter struct {
	Positions []string
	Teams     []string
	PriceMin  float64
	PriceMax  float64
	PointsMin float64
	FormMin   float64

	// Search matches web_name or second_name, case-insensitively.
	Search string
}

// FilterPlayers returns the players matching f, in their original order.
func FilterPlayers(players []Player, f PlayerFilter) []Player {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]Player, 0, len(players))
	for _, p := range players {
		if len(f.Positions) > 0 && !slices.Contains(f.Positions, p.PositionName) {
			continue
		}
		if len(f.Teams) > 0 && !slices.Contains(f.Teams, p.TeamName) {
			continue
		}
		if p.Price < f.PriceMin || (f.PriceMax > 0 && p.Price > f.PriceMax) {
			continue
		}
		if p.TotalPoints < f.PointsMin || p.Form < f.FormMin {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.WebName), search) &&
			!strings.Contains(strings.ToLower(p.SecondName), search) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FilterOptions lists the distinct position and team names in players, sorted.
func FilterOptions(players []Player) (positions, teams []string) {
	for _, p := range players {
		if p.PositionName != "" {
			positions = append(positions, p.PositionName)
		}
		if p.TeamName != "" {
			teams = append(teams, p.TeamName)
		}
	}
	slices.Sort(positions)
	slices.Sort(teams)
	return slices.Compact(positions), slices.Compact(teams)
}

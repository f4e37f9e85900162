package fpl

// defaultDifficulty is used when a fixture carries no difficulty rating.
const defaultDifficulty = 3

// DifficultyLabel maps a fixture difficulty rating (1-5) to its FDR label.
func DifficultyLabel(difficulty int) string {
	switch difficulty {
	case 1:
		return "Easy"
	case 2:
		return "Medium"
	case 3:
		return "Hard"
	case 4:
		return "Very Hard"
	case 5:
		return "Extreme"
	default:
		return "Unknown"
	}
}

// filterFixtures keeps fixtures involving teamID and played in gameweek.
// A zero teamID or gameweek disables that filter.
func filterFixtures(fixtures []Fixture, teamID, gameweek int) []Fixture {
	out := make([]Fixture, 0, len(fixtures))
	for _, f := range fixtures {
		if teamID != 0 && f.TeamH != teamID && f.TeamA != teamID {
			continue
		}
		if gameweek != 0 && (f.Event == nil || *f.Event != gameweek) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// fixturesWithFDR rates the first 2*numGameweeks of a team's fixtures from
// that team's side. Unscheduled fixtures and unknown opponents are skipped.
func fixturesWithFDR(fixtures []Fixture, teams []Team, teamID, numGameweeks int) []FixtureFDR {
	byID := make(map[int]Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}

	fixtures = filterFixtures(fixtures, teamID, 0)
	if limit := max(numGameweeks, 0) * 2; len(fixtures) > limit {
		fixtures = fixtures[:limit]
	}

	out := make([]FixtureFDR, 0, len(fixtures))
	for _, f := range fixtures {
		if f.Event == nil {
			continue
		}

		home := f.TeamH == teamID
		opponentID, rating := f.TeamH, f.TeamADifficulty
		if home {
			opponentID, rating = f.TeamA, f.TeamHDifficulty
		}

		opponent, ok := byID[opponentID]
		if !ok {
			continue
		}

		difficulty := defaultDifficulty
		if rating != nil {
			difficulty = *rating
		}
		homeAway := "Away"
		if home {
			homeAway = "Home"
		}

		out = append(out, FixtureFDR{
			Gameweek:   *f.Event,
			Opponent:   opponent.ShortName,
			HomeAway:   homeAway,
			Difficulty: difficulty,
			FDR:        DifficultyLabel(difficulty),
		})
	}
	return out
}

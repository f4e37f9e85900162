package fpl

import "strings"

// defaultChanceOfPlaying is assumed when the API has no availability news.
const defaultChanceOfPlaying = 100

func buildTeams(doc *bootstrapDoc) []Team {
	teams := make([]Team, len(doc.Teams))
	for i, t := range doc.Teams {
		t.Name = strings.TrimSpace(t.Name)
		t.ShortName = strings.TrimSpace(t.ShortName)
		teams[i] = t
	}
	return teams
}

func buildGameweeks(doc *bootstrapDoc) []Gameweek {
	gws := make([]Gameweek, len(doc.Events))
	for i, e := range doc.Events {
		gws[i] = Gameweek{
			ID:           e.ID,
			Name:         e.Name,
			DeadlineTime: e.DeadlineTime,
			Finished:     e.Finished,
			IsCurrent:    e.IsCurrent,
			IsNext:       e.IsNext,
			IsPrev:       e.IsPrevious,
		}
	}
	return gws
}

func buildPlayers(doc *bootstrapDoc) []Player {
	teamNames := make(map[int]string, len(doc.Teams))
	for _, t := range doc.Teams {
		teamNames[t.ID] = strings.TrimSpace(t.Name)
	}
	positions := make(map[int]string, len(doc.ElementTypes))
	for _, et := range doc.ElementTypes {
		positions[et.ID] = et.SingularName
	}

	players := make([]Player, len(doc.Elements))
	for i, e := range doc.Elements {
		price := e.NowCost.or(0) / 10
		p := Player{
			ID:           e.ID,
			WebName:      e.WebName,
			FirstName:    e.FirstName,
			SecondName:   e.SecondName,
			TeamID:       e.Team,
			TeamName:     teamNames[e.Team],
			PositionID:   e.ElementType,
			PositionName: positions[e.ElementType],

			Price: price,
			Value: price,

			Form:        e.Form.or(0),
			TotalPoints: e.TotalPoints.or(0),
			Minutes:     e.Minutes.or(0),
			GoalsScored: e.GoalsScored.or(0),
			Assists:     e.Assists.or(0),
			CleanSheets: e.CleanSheets.or(0),
			Bonus:       e.Bonus.or(0),

			XG:                       e.ExpectedGoals.or(0),
			XA:                       e.ExpectedAssists.or(0),
			Threat:                   e.Threat.or(0),
			Creativity:               e.Creativity.or(0),
			Influence:                e.Influence.or(0),
			SelectedByPercent:        e.SelectedByPercent.or(0),
			TransfersIn:              e.TransfersIn.or(0),
			TransfersOut:             e.TransfersOut.or(0),
			ValueChange:              e.ValueChange.or(0),
			ChanceOfPlayingNextRound: e.ChanceOfPlayingNextRound.or(defaultChanceOfPlaying),
		}

		divisor := price
		if divisor == 0 {
			divisor = 1
		}
		p.PointsPerMillion = p.TotalPoints / divisor

		players[i] = p
	}
	return players
}

package football

// StatsRequest identifies the team whose season aggregates are wanted.
// Providers use whichever identifiers they understand.
type StatsRequest struct {
	Team     string `json:"team"`
	TeamID   int    `json:"team_id,omitempty"`
	League   string `json:"league,omitempty"`
	LeagueID int    `json:"league_id,omitempty"`
	Season   int    `json:"season,omitempty"`
}

// H2HRequest identifies a fixture pairing.
type H2HRequest struct {
	Home   string `json:"home"`
	Away   string `json:"away"`
	HomeID int    `json:"home_id,omitempty"`
	AwayID int    `json:"away_id,omitempty"`
	League string `json:"league,omitempty"`
	Last   int    `json:"last,omitempty"`
}

// TeamStats are season aggregates. Recent carries per-match history when
// the provider has it; alternative markets need it.
type TeamStats struct {
	TeamID        int       `json:"team_id,omitempty"`
	Team          string    `json:"team"`
	League        string    `json:"league,omitempty"`
	Season        int       `json:"season,omitempty"`
	MatchesPlayed int       `json:"matches_played"`
	Wins          int       `json:"wins"`
	Draws         int       `json:"draws"`
	Losses        int       `json:"losses"`
	GoalsFor      int       `json:"goals_for"`
	GoalsAgainst  int       `json:"goals_against"`
	Form          string    `json:"form"`
	Recent        *TeamForm `json:"recent,omitempty"`
	Source        string    `json:"source"`
	Estimated     bool      `json:"estimated,omitempty"`
}

// Usable reports whether the aggregates carry any matches.
func (s TeamStats) Usable() bool {
	return s.MatchesPlayed > 0
}

// AvgGoalsFor is goals scored per match.
func (s TeamStats) AvgGoalsFor() float64 {
	if s.MatchesPlayed == 0 {
		return 0
	}
	return Round2(float64(s.GoalsFor) / float64(s.MatchesPlayed))
}

// AvgGoalsAgainst is goals conceded per match.
func (s TeamStats) AvgGoalsAgainst() float64 {
	if s.MatchesPlayed == 0 {
		return 0
	}
	return Round2(float64(s.GoalsAgainst) / float64(s.MatchesPlayed))
}

// WinRate is wins per match.
func (s TeamStats) WinRate() float64 {
	if s.MatchesPlayed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.MatchesPlayed)
}

// HasHistory reports whether per-match history is attached.
func (s TeamStats) HasHistory() bool {
	return s.Recent != nil && s.Recent.Len() > 0
}

// H2H summarizes previous meetings. Team1 is the side named first in the
// request.
type H2H struct {
	Team1     string   `json:"team1"`
	Team2     string   `json:"team2"`
	Matches   int      `json:"matches"`
	Team1Wins int      `json:"team1_wins"`
	Draws     int      `json:"draws"`
	Team2Wins int      `json:"team2_wins"`
	Results   []string `json:"results,omitempty"`
	Source    string   `json:"source"`
	Estimated bool     `json:"estimated,omitempty"`
}

// Usable reports whether any meeting was recorded.
func (h H2H) Usable() bool {
	return h.Matches > 0
}

// Dominance returns Team1's win share minus Team2's.
func (h H2H) Dominance() float64 {
	if h.Matches == 0 {
		return 0
	}
	return float64(h.Team1Wins-h.Team2Wins) / float64(h.Matches)
}

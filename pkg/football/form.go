package football

import (
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
)

// Venue filters matches by where the team played.
type Venue int

const (
	AnyVenue Venue = iota
	HomeOnly
	AwayOnly
)

// TeamForm is a team's recent history, newest first. Build it with
// NewTeamForm; methods never modify the receiver.
type TeamForm struct {
	Team    string        `json:"team"`
	Matches []MatchResult `json:"matches"`
}

// NewTeamForm validates and copies matches and sorts them newest first.
func NewTeamForm(team string, matches []MatchResult) (TeamForm, error) {
	out := make([]MatchResult, 0, len(matches))
	for _, m := range matches {
		if err := m.Validate(); err != nil {
			return TeamForm{}, err
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return TeamForm{Team: team, Matches: out}, nil
}

// WithMatch returns a new form with m added.
func (f TeamForm) WithMatch(m MatchResult) (TeamForm, error) {
	all := make([]MatchResult, 0, len(f.Matches)+1)
	all = append(all, f.Matches...)
	return NewTeamForm(f.Team, append(all, m))
}

// Len is the number of recorded matches.
func (f TeamForm) Len() int { return len(f.Matches) }

// Recent returns up to n most recent matches at the venue.
func (f TeamForm) Recent(n int, v Venue) []MatchResult {
	if n <= 0 {
		return nil
	}
	out := make([]MatchResult, 0, n)
	for _, m := range f.Matches {
		if (v == HomeOnly && !m.IsHome) || (v == AwayOnly && m.IsHome) {
			continue
		}
		out = append(out, m)
		if len(out) == n {
			break
		}
	}
	return out
}

// AvgXGFor averages expected goals created.
func (f TeamForm) AvgXGFor(n int, v Venue) float64 {
	return f.avg(n, v, MatchResult.XGFor)
}

// AvgXGAgainst averages expected goals conceded.
func (f TeamForm) AvgXGAgainst(n int, v Venue) float64 {
	return f.avg(n, v, MatchResult.XGAgainst)
}

// AvgGoalsFor averages goals scored.
func (f TeamForm) AvgGoalsFor(n int, v Venue) float64 {
	return f.avg(n, v, func(m MatchResult) float64 { return float64(m.GoalsFor()) })
}

// AvgGoalsAgainst averages goals conceded.
func (f TeamForm) AvgGoalsAgainst(n int, v Venue) float64 {
	return f.avg(n, v, func(m MatchResult) float64 { return float64(m.GoalsAgainst()) })
}

// FormString renders the last n results, most recent first ("WDWLW").
func (f TeamForm) FormString(n int) string {
	var b strings.Builder
	for _, m := range f.Recent(n, AnyVenue) {
		b.WriteByte(m.Outcome())
	}
	return b.String()
}

// Samples returns the team's own reported values of stat over the last n
// matches at the venue; unreported matches are skipped.
func (f TeamForm) Samples(n int, v Venue, stat Stat) []float64 {
	var out []float64
	for _, m := range f.Recent(n, v) {
		if x, ok := m.For().Value(stat); ok {
			out = append(out, x)
		}
	}
	return out
}

// MatchTotals returns both sides' combined values of stat for matches where
// both sides were reported.
func (f TeamForm) MatchTotals(n int, v Venue, stat Stat) []float64 {
	var out []float64
	for _, m := range f.Recent(n, v) {
		h, hok := m.Home.Value(stat)
		a, aok := m.Away.Value(stat)
		if hok && aok {
			out = append(out, h+a)
		}
	}
	return out
}

// AvgFor averages the team's own values of stat, or 0 without data.
func (f TeamForm) AvgFor(n int, v Venue, stat Stat) float64 {
	return Mean(f.Samples(n, v, stat))
}

// AvgMatchTotal averages the per-match totals of stat, or 0 without data.
func (f TeamForm) AvgMatchTotal(n int, v Venue, stat Stat) float64 {
	return Mean(f.MatchTotals(n, v, stat))
}

// Coverage is the fraction of the last n matches at the venue that
// reported stat for this team. No matches means no coverage.
func (f TeamForm) Coverage(n int, v Venue, stat Stat) float64 {
	recent := f.Recent(n, v)
	if len(recent) == 0 {
		return 0
	}
	return float64(len(f.Samples(n, v, stat))) / float64(len(recent))
}

func (f TeamForm) avg(n int, v Venue, fn func(MatchResult) float64) float64 {
	recent := f.Recent(n, v)
	xs := make([]float64, len(recent))
	for i, m := range recent {
		xs[i] = fn(m)
	}
	return Mean(xs)
}

// Mean is the sample mean rounded to two decimals, or 0 for no samples.
func Mean(xs []float64) float64 {
	m, err := stats.Mean(stats.Float64Data(xs))
	if err != nil {
		return 0
	}
	return Round2(m)
}

// Round2 rounds to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

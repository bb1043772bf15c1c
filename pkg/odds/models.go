// Package odds fetches bookmaker prices, picks the best available odds per
// outcome and synthesizes fair odds from a model when no feed answers.
package odds

import (
	"time"

	"github.com/phenomenon0/bet-copilot/pkg/football"
)

// Market keys used by The Odds API.
const (
	MarketH2H     = "h2h"
	MarketTotals  = "totals"
	MarketSpreads = "spreads"
)

// DrawOutcome is the outcome name bookmakers use for a draw.
const DrawOutcome = "Draw"

// Market is one bookmaker market with decimal odds per outcome name.
type Market struct {
	Key        string             `json:"key"`
	Outcomes   map[string]float64 `json:"outcomes"`
	LastUpdate time.Time          `json:"last_update"`
}

// Bookmaker carries the markets one bookmaker offers for an event.
type Bookmaker struct {
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	Markets    []Market  `json:"markets"`
	LastUpdate time.Time `json:"last_update"`
}

// Event is a fixture with odds from several bookmakers.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	CommenceTime time.Time   `json:"commence_time"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// Price is a quoted decimal price and who quotes it.
type Price struct {
	Odds      float64 `json:"odds"`
	Bookmaker string  `json:"bookmaker"`
}

// BestOdds returns the highest price for an outcome across bookmakers.
func (e Event) BestOdds(marketKey, outcome string) (Price, bool) {
	var best Price
	found := false
	for _, b := range e.Bookmakers {
		for _, m := range b.Markets {
			if m.Key != marketKey {
				continue
			}
			o, ok := m.Outcomes[outcome]
			if !ok || o <= 1 {
				continue
			}
			if !found || o > best.Odds {
				best = Price{Odds: o, Bookmaker: b.Title}
				found = true
			}
		}
	}
	return best, found
}

// BookmakerOdds returns one bookmaker's price for an outcome.
func (e Event) BookmakerOdds(bookmakerKey, marketKey, outcome string) (float64, bool) {
	for _, b := range e.Bookmakers {
		if b.Key != bookmakerKey {
			continue
		}
		for _, m := range b.Markets {
			if m.Key == marketKey {
				o, ok := m.Outcomes[outcome]
				return o, ok
			}
		}
	}
	return 0, false
}

// Involves reports whether the event is the given pairing, comparing names
// across providers.
func (e Event) Involves(home, away string) bool {
	return sameSide(e.HomeTeam, home) && sameSide(e.AwayTeam, away)
}

func sameSide(provider, query string) bool {
	return football.SameTeam(provider, query) || football.MatchesQuery(provider, query)
}

// MatchOdds are decimal 1X2 odds for one fixture.
type MatchOdds struct {
	Home      Price  `json:"home"`
	Draw      Price  `json:"draw"`
	Away      Price  `json:"away"`
	EventID   string `json:"event_id,omitempty"`
	Source    string `json:"source"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

// Complete reports whether all three outcomes are priced.
func (m MatchOdds) Complete() bool {
	return m.Home.Odds > 1 && m.Draw.Odds > 1 && m.Away.Odds > 1
}

// Overround is the market's summed implied probability minus one.
func (m MatchOdds) Overround() float64 {
	if !m.Complete() {
		return 0
	}
	return 1/m.Home.Odds + 1/m.Draw.Odds + 1/m.Away.Odds - 1
}

// MatchOdds collects the best 1X2 prices of the event.
func (e Event) MatchOdds() MatchOdds {
	out := MatchOdds{EventID: e.ID}
	out.Home, _ = e.BestOdds(MarketH2H, e.HomeTeam)
	out.Draw, _ = e.BestOdds(MarketH2H, DrawOutcome)
	out.Away, _ = e.BestOdds(MarketH2H, e.AwayTeam)
	return out
}

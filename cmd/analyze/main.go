// analyze runs a single match analysis and prints it as JSON.
//
//	analyze -home Arsenal -away Chelsea -odds 2.10,3.40,3.60 -bankroll 1000
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/bet-copilot/pkg/config"
	"github.com/phenomenon0/bet-copilot/pkg/engine"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/odds"
)

var (
	envFile  = flag.String("env", ".env", "Env file to load before the environment")
	home     = flag.String("home", "", "Home team")
	away     = flag.String("away", "", "Away team")
	league   = flag.String("league", "", "League name (default LEAGUE)")
	quoted   = flag.String("odds", "", "Decimal odds as home,draw,away")
	bankroll = flag.Float64("bankroll", 0, "Bankroll for stake amounts (default BANKROLL)")
	notes    = flag.String("context", "", "Free-text match context for the analysts")
	timeout  = flag.Duration("timeout", 2*time.Minute, "Overall deadline")
	summary  = flag.Bool("summary", false, "Print a short text summary instead of JSON")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	req := engine.Request{
		HomeTeam: *home,
		AwayTeam: *away,
		League:   *league,
		Context:  *notes,
	}
	if *bankroll > 0 {
		req.Bankroll = decimal.NewFromFloat(*bankroll)
	}
	if *quoted != "" {
		m, err := parseOdds(*quoted)
		if err != nil {
			return err
		}
		req.Odds = &m
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := engine.Assemble(ctx, cfg, engine.Deps{Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	a, err := rt.Aggregator.Analyze(ctx, req)
	if err != nil {
		return err
	}
	if *summary {
		printSummary(a, logger)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// parseOdds reads "home,draw,away" decimal prices.
func parseOdds(s string) (odds.MatchOdds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return odds.MatchOdds{}, errors.New("odds must be home,draw,away")
	}
	var prices [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return odds.MatchOdds{}, fmt.Errorf("odds %q: %w", p, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return odds.MatchOdds{}, fmt.Errorf("odds %q: not a finite price", p)
		}
		prices[i] = v
	}
	return odds.MatchOdds{
		Home: odds.Price{Odds: prices[0]},
		Draw: odds.Price{Odds: prices[1]},
		Away: odds.Price{Odds: prices[2]},
	}, nil
}

func printSummary(a *engine.Analysis, logger *log.Logger) {
	p := a.Prediction
	fmt.Printf("%s v %s (%s)\n", a.HomeTeam, a.AwayTeam, a.League)
	fmt.Printf("  xG        %.2f - %.2f\n", p.HomeLambda, p.AwayLambda)
	fmt.Printf("  1X2       %.1f%% / %.1f%% / %.1f%%\n", p.HomeWinProb*100, p.DrawProb*100, p.AwayWinProb*100)
	fmt.Printf("  odds      %.2f / %.2f / %.2f (%s)\n", a.Odds.Home.Odds, a.Odds.Draw.Odds, a.Odds.Away.Odds, a.Odds.Source)
	if b := a.Best; b != nil {
		fmt.Printf("  best bet  %s @ %.2f, EV %.1f%%, stake %.2f%% (%s)\n",
			b.Selection, b.Odds, b.EV*100, b.RecommendedStake, b.Stake.StringFixed(2))
	} else {
		fmt.Println("  best bet  none")
	}
	for _, s := range a.KeyInsights {
		fmt.Println("  -", s)
	}
	if a.Degraded {
		logger.Warn("analysis used fallback data", "id", a.ID)
	}
}

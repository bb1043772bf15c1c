package odds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/phenomenon0/bet-copilot/core"
	"github.com/phenomenon0/bet-copilot/pkg/football"
)

const (
	// DefaultBaseURL is The Odds API v4 base URL.
	DefaultBaseURL = "https://api.the-odds-api.com/v4"
	// ProviderName names the live feed in chains and logs.
	ProviderName = "odds-api"
)

var sportKeys = map[string]string{
	"premier league": "soccer_epl",
	"la liga":        "soccer_spain_la_liga",
	"serie a":        "soccer_italy_serie_a",
	"bundesliga":     "soccer_germany_bundesliga",
	"ligue 1":        "soccer_france_ligue_one",
}

// DefaultSport is used for leagues without a known key.
const DefaultSport = "soccer_epl"

// SportKey maps a league name to The Odds API sport key.
func SportKey(league string) string {
	if k, ok := sportKeys[football.NormalizeName(league)]; ok {
		return k
	}
	return DefaultSport
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.http = client
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRegions sets the bookmaker regions queried (default "eu").
func WithRegions(regions string) ClientOption {
	return func(c *Client) {
		c.regions = regions
	}
}

// Client is a The Odds API client.
type Client struct {
	baseURL string
	apiKey  string
	regions string
	http    *http.Client
	limiter *rate.Limiter

	remaining atomic.Int64
}

// NewClient creates a client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		regions: "eu",
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
	c.remaining.Store(-1)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string    { return ProviderName }
func (c *Client) Available() bool { return c != nil && c.apiKey != "" }

// Remaining is the request quota reported by the last response, or -1.
func (c *Client) Remaining() int64 { return c.remaining.Load() }

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.FromContext(ProviderName, fmt.Errorf("rate limiter: %w", err))
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return core.BadResponse(ProviderName, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return core.FromContext(ProviderName, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if n, err := strconv.ParseInt(resp.Header.Get("x-requests-remaining"), 10, 64); err == nil {
		c.remaining.Store(n)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500,
			resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return core.Unavailable(ProviderName, err)
		default:
			return core.BadResponse(ProviderName, err)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return core.BadResponse(ProviderName, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Sport is an entry of the sports listing.
type Sport struct {
	Key    string `json:"key"`
	Group  string `json:"group"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// GetSports lists the sports the feed covers.
func (c *Client) GetSports(ctx context.Context) ([]Sport, error) {
	var out []Sport
	if err := c.get(ctx, "/sports", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type apiOutcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type apiMarket struct {
	Key        string       `json:"key"`
	LastUpdate time.Time    `json:"last_update"`
	Outcomes   []apiOutcome `json:"outcomes"`
}

type apiEvent struct {
	ID           string    `json:"id"`
	SportKey     string    `json:"sport_key"`
	HomeTeam     string    `json:"home_team"`
	AwayTeam     string    `json:"away_team"`
	CommenceTime time.Time `json:"commence_time"`
	Bookmakers   []struct {
		Key        string      `json:"key"`
		Title      string      `json:"title"`
		LastUpdate time.Time   `json:"last_update"`
		Markets    []apiMarket `json:"markets"`
	} `json:"bookmakers"`
}

func (e apiEvent) toEvent() Event {
	ev := Event{
		ID:           e.ID,
		SportKey:     e.SportKey,
		HomeTeam:     e.HomeTeam,
		AwayTeam:     e.AwayTeam,
		CommenceTime: e.CommenceTime,
		Bookmakers:   make([]Bookmaker, 0, len(e.Bookmakers)),
	}
	for _, b := range e.Bookmakers {
		bm := Bookmaker{Key: b.Key, Title: b.Title, LastUpdate: b.LastUpdate}
		for _, m := range b.Markets {
			mk := Market{Key: m.Key, LastUpdate: m.LastUpdate, Outcomes: make(map[string]float64, len(m.Outcomes))}
			for _, o := range m.Outcomes {
				mk.Outcomes[o.Name] = o.Price
			}
			bm.Markets = append(bm.Markets, mk)
		}
		ev.Bookmakers = append(ev.Bookmakers, bm)
	}
	return ev
}

// GetOdds fetches decimal odds for every upcoming event of a sport.
func (c *Client) GetOdds(ctx context.Context, sportKey string, markets ...string) ([]Event, error) {
	if len(markets) == 0 {
		markets = []string{MarketH2H}
	}
	params := url.Values{
		"regions":    {c.regions},
		"markets":    {strings.Join(markets, ",")},
		"oddsFormat": {"decimal"},
	}

	var raw []apiEvent
	if err := c.get(ctx, "/sports/"+url.PathEscape(sportKey)+"/odds", params, &raw); err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raw))
	for _, e := range raw {
		events = append(events, e.toEvent())
	}
	return events, nil
}

// FindEvent returns the upcoming event for a pairing.
func (c *Client) FindEvent(ctx context.Context, sportKey, home, away string) (Event, error) {
	events, err := c.GetOdds(ctx, sportKey)
	if err != nil {
		return Event{}, err
	}
	for _, e := range events {
		if e.Involves(home, away) {
			return e, nil
		}
	}
	return Event{}, core.BadResponse(ProviderName, fmt.Errorf("no event for %s v %s in %s", home, away, sportKey))
}

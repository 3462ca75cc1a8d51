// Package sportmonks implements the sports-data provider client. It is the
// pipeline's only source of raw fixture facts; everything it returns is
// reconciled into the store by the ingestor.
package sportmonks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bitredict/backend/internal/domain"
)

const fixturesInclude = "scores;participants;state;league"

// Client is an HTTP client for the provider's fixtures API with bearer-token
// auth, request rate limiting and taxonomy-classified failures.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client. ratePerSec bounds outbound request rate; the
// provider additionally signals 429 with Retry-After, which FixturesBetween
// honors before retrying.
func New(baseURL, token string, timeout time.Duration, ratePerSec float64, burst int, logger *slog.Logger) *Client {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:  logger.With(slog.String("component", "sportmonks")),
	}
}

// FixturesBetween fetches all fixtures kicking off in [from, to], walking
// the provider's pagination. It returns the mapped fixtures and the raw
// response pages for archival.
//
// Failures are classified: network errors and 5xx are transient, 429 is
// waited out per Retry-After, any other 4xx is permanent.
func (c *Client) FixturesBetween(ctx context.Context, from, to time.Time) ([]Fixture, [][]byte, error) {
	var (
		fixtures []Fixture
		raw      [][]byte
		page     = 1
	)

	for {
		body, err := c.get(ctx, c.betweenURL(from, to, page))
		if err != nil {
			return nil, nil, err
		}
		raw = append(raw, body)

		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, nil, fmt.Errorf("sportmonks: decode fixtures page %d: %w", page, err)
		}
		fixtures = append(fixtures, env.Data...)

		if !env.Pagination.HasMore {
			return fixtures, raw, nil
		}
		page++
	}
}

func (c *Client) betweenURL(from, to time.Time, page int) string {
	q := url.Values{}
	q.Set("include", fixturesInclude)
	q.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s/fixtures/between/%s/%s?%s",
		c.baseURL, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"), q.Encode())
}

// get performs one rate-limited request with 429 handling. A single 429
// retry is attempted after the advertised Retry-After; repeated throttling
// surfaces as transient so the caller's backoff takes over.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("sportmonks: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, domain.Transient(fmt.Errorf("sportmonks: get: %w", err))
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, domain.Transient(fmt.Errorf("sportmonks: read body: %w", readErr))
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests && attempt == 0:
			wait := retryAfter(resp.Header, 5*time.Second)
			c.logger.WarnContext(ctx, "provider throttled",
				slog.Duration("retry_after", wait),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, domain.Transient(fmt.Errorf("sportmonks: throttled after retry"))

		case resp.StatusCode >= 500:
			return nil, domain.Transient(fmt.Errorf("sportmonks: status %d: %s", resp.StatusCode, truncate(body)))

		default:
			return nil, fmt.Errorf("sportmonks: status %d: %s", resp.StatusCode, truncate(body))
		}
	}
}

func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// MapFixture converts a wire fixture into the domain fixture and, when the
// fixture is finished, its raw scores. The provider reports the shootout as
// a separate PEN score object; CURRENT excludes it, so full-time fields stay
// shootout-free.
func MapFixture(f Fixture, now time.Time) (domain.Fixture, *domain.RawScores, error) {
	kickoff, err := time.Parse("2006-01-02 15:04:05", f.StartingAt)
	if err != nil {
		return domain.Fixture{}, nil, fmt.Errorf("sportmonks: fixture %d: parse starting_at %q: %w", f.ID, f.StartingAt, err)
	}

	fx := domain.Fixture{
		ID:        strconv.FormatInt(f.ID, 10),
		League:    f.League.Name,
		Kickoff:   kickoff.UTC(),
		Status:    mapState(f.State.State),
		UpdatedAt: now,
	}
	for _, p := range f.Participants {
		switch p.Meta.Location {
		case "home":
			fx.Home = p.Name
		case "away":
			fx.Away = p.Name
		}
	}

	if !fx.Status.Finished() {
		return fx, nil, nil
	}

	raw, ok := extractScores(f.Scores)
	if !ok {
		return fx, nil, domain.DataIncomplete(fmt.Errorf("sportmonks: fixture %d finished without CURRENT scores", f.ID))
	}
	return fx, &raw, nil
}

// extractScores folds the provider's per-participant score entries into
// RawScores. Both sides of CURRENT must be present; all other periods are
// optional.
func extractScores(entries []ScoreEntry) (domain.RawScores, bool) {
	var raw domain.RawScores
	var haveHomeFT, haveAwayFT bool

	for _, e := range entries {
		goals := e.Score.Goals
		home := e.Score.Participant == "home"
		switch e.Description {
		case scoreCurrent:
			if home {
				raw.HomeFT, haveHomeFT = goals, true
			} else {
				raw.AwayFT, haveAwayFT = goals, true
			}
		case scoreFirstHalf:
			g := goals
			if home {
				raw.HomeHT = &g
			} else {
				raw.AwayHT = &g
			}
		case scoreExtraTime:
			g := goals
			if home {
				raw.HomeET = &g
			} else {
				raw.AwayET = &g
			}
		case scorePenalties:
			g := goals
			if home {
				raw.HomePen = &g
			} else {
				raw.AwayPen = &g
			}
		}
	}

	return raw, haveHomeFT && haveAwayFT
}

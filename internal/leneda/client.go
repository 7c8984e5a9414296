// Package leneda retrieves metering data from the Leneda API.
//
// The client never fails a cycle: every call returns a Result whose
// Samples are empty when the request, the status or the body is bad. Err
// says why, for logging and metrics.
package leneda

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xtxerr/lenedastat/config"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/planner"
	"github.com/xtxerr/lenedastat/internal/series"
)

// maxBodyBytes bounds a response body.
const maxBodyBytes = 64 << 20

// Feed selects one of the two time-series endpoints.
type Feed int

const (
	// FeedQuarterHour is the raw 15-minute series.
	FeedQuarterHour Feed = iota
	// FeedHourly is the hourly aggregated series.
	FeedHourly
)

// String returns a human-readable representation of the Feed.
func (f Feed) String() string {
	switch f {
	case FeedQuarterHour:
		return "15min"
	case FeedHourly:
		return "hourly"
	default:
		return "unknown"
	}
}

// ParseFeed converts a config value into a Feed.
func ParseFeed(s string) (Feed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw", "15min", "quarter_hour":
		return FeedQuarterHour, nil
	case "", "hourly", "hour":
		return FeedHourly, nil
	default:
		return FeedQuarterHour, errors.Wrapf(errors.ErrUnsupportedFeed, "%q", s)
	}
}

// Config holds client settings.
type Config struct {
	BaseURL  string
	APIKey   string
	EnergyID string
	Timeout  time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BaseURL: config.DefaultAPIBaseURL,
		Timeout: config.DefaultRequestTimeout,
	}
}

// Result is the outcome of one retrieval call.
type Result struct {
	Samples  []series.Sample
	Dropped  int
	Status   int
	Duration time.Duration
	Err      error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Client fetches time series for one set of credentials.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client. A nil httpClient uses a default client.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultRequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

// Fetch retrieves one chunk of the given feed.
func (c *Client) Fetch(ctx context.Context, feed Feed, meteringPoint, obisCode string, chunk planner.Chunk) Result {
	started := time.Now()
	res := c.fetch(ctx, feed, meteringPoint, obisCode, chunk)
	res.Duration = time.Since(started)
	if res.Err != nil {
		res.Samples = nil
	}
	return res
}

func (c *Client) fetch(ctx context.Context, feed Feed, meteringPoint, obisCode string, chunk planner.Chunk) Result {
	req, err := c.newRequest(ctx, feed, meteringPoint, obisCode, chunk)
	if err != nil {
		return Result{Err: err}
	}

	ctx, cancel := context.WithTimeout(req.Context(), c.cfg.Timeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Err: errors.Wrap(errors.ErrTimeout, err.Error())}
		}
		return Result{Err: errors.Wrap(errors.ErrConnectionFailed, err.Error())}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Result{Status: resp.StatusCode, Err: errors.NewUnexpectedStatus(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Status: resp.StatusCode, Err: errors.Wrap(errors.ErrTimeout, err.Error())}
		}
		return Result{Status: resp.StatusCode, Err: errors.Wrap(errors.ErrConnectionFailed, err.Error())}
	}

	samples, dropped, err := Parse(body, feed)
	if err != nil {
		return Result{Status: resp.StatusCode, Err: err}
	}
	return Result{Samples: samples, Dropped: dropped, Status: resp.StatusCode}
}

func (c *Client) newRequest(ctx context.Context, feed Feed, meteringPoint, obisCode string, chunk planner.Chunk) (*http.Request, error) {
	path := fmt.Sprintf("/metering-points/%s/time-series", url.PathEscape(meteringPoint))
	params := url.Values{}
	params.Set("obisCode", obisCode)
	params.Set("startDateTime", chunk.Start.UTC().Format(config.RequestTimeFormat))
	params.Set("endDateTime", chunk.End.UTC().Format(config.RequestTimeFormat))

	switch feed {
	case FeedQuarterHour:
	case FeedHourly:
		path += "/aggregated"
		params.Set("aggregationLevel", "Hour")
		params.Set("transformationMode", "Accumulation")
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedFeed, "%d", int(feed))
	}

	u, err := url.Parse(c.cfg.BaseURL + path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(config.HeaderAPIKey, c.cfg.APIKey)
	req.Header.Set(config.HeaderEnergyID, c.cfg.EnergyID)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

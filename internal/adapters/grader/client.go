package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	perr "markbook/internal/platform/errors"
	"markbook/internal/platform/logger"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUA        = "markbook-grader"
	defaultMaxRetry  = 4
	defaultRetryBase = 500 * time.Millisecond
)

// Options configures the Client
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration

	// Retry config for transient and rate limited responses
	MaxRetries int
	RetryBase  time.Duration
}

// Client talks to the grading backend over HTTP with retries and rate limit
// handling. Grading is slow and occasionally flaky, so every transient
// failure is retried with exponential backoff before it reaches a caller
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("grader"),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Grade scores a single submission via POST /v1/grade
func (c *Client) Grade(ctx context.Context, in Request) (Result, error) {
	if c.opts.BaseURL == "" {
		return Result{}, perr.New(perr.ErrorCodeUnavailable, "grader base url not configured")
	}
	if in.Content == "" {
		return Result{}, perr.New(perr.ErrorCodeInvalidArgument, "grader refuses empty content")
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return Result{}, perr.Wrap(err, perr.ErrorCodeUnknown, "grader marshal request failed")
	}

	url := c.opts.BaseURL + "/v1/grade"
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return Result{}, perr.Wrap(err, perr.ErrorCodeUnknown, "grader new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			if !c.shouldRetry(attempts) {
				return Result{}, perr.Wrap(err, perr.ErrorCodeUnavailable, "grader do failed")
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("grader transport error retrying")
			c.sleep(back)
			attempts++
			continue
		}

		c.log.Debug().
			Str("submission", in.SubmissionID).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("grader http response")

		switch resp.StatusCode {
		case http.StatusOK:
			var out Result
			err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)
			_ = resp.Body.Close()
			if err != nil {
				return Result{}, perr.Wrap(err, perr.ErrorCodeUnknown, "grader decode response failed")
			}
			if out.MaxPoints == 0 {
				out.MaxPoints = in.MaxPoints
			}
			return out, nil
		case http.StatusTooManyRequests:
			wait := retryAfter(resp.Header, c.now())
			if wait <= 0 {
				wait = c.backoff(attempts)
			}
			if !c.shouldRetry(attempts) {
				_ = drainAndClose(resp.Body)
				return Result{}, perr.New(perr.ErrorCodeTooManyRequests, "grader rate limited")
			}
			c.log.Warn().Dur("sleep", wait).Msg("grader rate limited backing off")
			_ = drainAndClose(resp.Body)
			c.sleep(wait)
			attempts++
			continue
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			if !c.shouldRetry(attempts) {
				_ = drainAndClose(resp.Body)
				return Result{}, perr.New(perr.ErrorCodeUnavailable, "grader transient server error")
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("grader transient error retrying")
			_ = drainAndClose(resp.Body)
			c.sleep(back)
			attempts++
			continue
		case http.StatusUnprocessableEntity, http.StatusBadRequest:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return Result{}, perr.Newf(perr.ErrorCodeValidation, "grader rejected submission: %s", string(body))
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return Result{}, perr.Newf(perr.ErrorCodeUnknown, "grader unexpected status %d body %s", resp.StatusCode, string(body))
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase
	// simple exponential with cap
	ms := int64(d / time.Millisecond)
	ms = ms << uint(attempt)
	max := int64(30 * time.Second / time.Millisecond)
	if ms > max {
		ms = max
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			return time.Duration(s) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			return t.Sub(now)
		}
	}
	return 0
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<16))
	return rc.Close()
}

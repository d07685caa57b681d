package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mbd888/callgate/internal/logging"
	"github.com/mbd888/callgate/internal/metrics"
	"github.com/mbd888/callgate/internal/retry"
	"github.com/mbd888/callgate/internal/traces"
)

// requestedInsights is the fixed insight set asked of the endpoint. Only
// fraud_score feeds the admission decision; sim_swap rides along in the raw
// payload for diagnostics.
var requestedInsights = []string{"fraud_score", "sim_swap"}

const (
	maxAttempts    = 2
	retryBaseDelay = 200 * time.Millisecond
	maxBodySize    = 1 << 20 // 1MB
)

// TokenSource supplies bearer tokens for the scoring endpoint.
type TokenSource interface {
	Mint() (string, error)
}

// Client queries the number-insight endpoint.
type Client struct {
	url    string
	tokens TokenSource
	http   *http.Client
}

// NewClient creates an insight client with a bounded request timeout.
func NewClient(url string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		tokens: tokens,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Assess queries the fraud risk for a phone number. Transport failures are
// retried once; authentication and malformed-response failures are not.
func (c *Client) Assess(ctx context.Context, phoneNumber string) (*Assessment, error) {
	ctx, span := traces.StartSpan(ctx, "insight.assess")
	defer span.End()

	timer := time.Now()
	assessment, err := c.assess(ctx, phoneNumber)
	metrics.InsightRequestDuration.Observe(time.Since(timer).Seconds())

	outcome := "ok"
	switch {
	case err == nil:
		span.SetAttributes(traces.RiskScore(assessment.Score))
	case errors.Is(err, ErrUnauthorized):
		outcome = "unauthorized"
	case errors.Is(err, ErrMalformedResponse):
		outcome = "malformed"
	default:
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.Timeout {
			outcome = "timeout"
		} else {
			outcome = "error"
		}
	}
	metrics.InsightRequestsTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		logging.L(ctx).Warn("insight lookup failed", "outcome", outcome, "error", err)
		return nil, err
	}
	return assessment, nil
}

func (c *Client) assess(ctx context.Context, phoneNumber string) (*Assessment, error) {
	body, err := json.Marshal(request{
		Type:     "phone",
		Phone:    phoneNumber,
		Insights: requestedInsights,
	})
	if err != nil {
		return nil, fmt.Errorf("insight: marshal request: %w", err)
	}

	token, err := c.tokens.Mint()
	if err != nil {
		return nil, fmt.Errorf("insight: mint token: %w", err)
	}

	var assessment *Assessment
	err = retry.Do(ctx, maxAttempts, retryBaseDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("insight: build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			// Transport failures are retryable; context cancellation is not.
			if ctx.Err() != nil {
				return retry.Permanent(&UpstreamError{Timeout: true, Err: err})
			}
			var isTimeout bool
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) {
				isTimeout = ne.Timeout()
			}
			return &UpstreamError{Timeout: isTimeout, Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return retry.Permanent(fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode))
		case resp.StatusCode >= 500:
			return &UpstreamError{Err: fmt.Errorf("status %d", resp.StatusCode)}
		case resp.StatusCode != http.StatusOK:
			return retry.Permanent(fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode))
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return &UpstreamError{Err: fmt.Errorf("read body: %w", err)}
		}

		var parsed response
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return retry.Permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		}
		if parsed.FraudScore == nil || parsed.FraudScore.RiskScore == nil {
			return retry.Permanent(fmt.Errorf("%w: missing fraud_score.risk_score", ErrMalformedResponse))
		}

		assessment = &Assessment{
			Score: *parsed.FraudScore.RiskScore,
			Raw:   json.RawMessage(raw),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assessment, nil
}

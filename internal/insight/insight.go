// Package insight looks up fraud-risk scores for phone numbers.
//
// It wraps the platform's number-insight endpoint: a bearer-JWT-authenticated
// POST that returns, among other signals, a fraud score on a 0-100 scale.
// Every failure mode surfaces as a distinct error; a score is never
// fabricated on failure.
package insight

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Errors
var (
	// ErrUnauthorized: the scoring endpoint rejected our credentials.
	ErrUnauthorized = errors.New("insight: unauthorized")
	// ErrMalformedResponse: the endpoint answered, but not with a usable score.
	ErrMalformedResponse = errors.New("insight: malformed response")
)

// UpstreamError wraps a transport-level failure reaching the scoring endpoint.
type UpstreamError struct {
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("insight: upstream timeout: %v", e.Err)
	}
	return fmt.Sprintf("insight: upstream failure: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Assessment is the result of one risk query. Ephemeral: it informs a single
// admission decision and is not persisted.
type Assessment struct {
	Score float64         // fraud risk, 0 (safe) to 100 (certain fraud)
	Raw   json.RawMessage // full response payload, opaque
}

// request is the insight API request body.
type request struct {
	Type     string   `json:"type"`
	Phone    string   `json:"phone"`
	Insights []string `json:"insights"`
}

// response models the subset of the insight payload we read. Pointers
// distinguish a missing field from a zero score.
type response struct {
	FraudScore *struct {
		RiskScore *float64 `json:"risk_score"`
	} `json:"fraud_score"`
}

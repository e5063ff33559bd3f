package model

import (
	"errors"
	"fmt"
)

// ValidationError reports a bad or missing field on an order intent or an
// out-of-range risk parameter. Surfaced synchronously, never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + ": " + e.Msg
}

// DataInsufficiencyError reports a candle window shorter than an indicator's
// warm-up requirement. Evaluation is skipped until more data arrives.
type DataInsufficiencyError struct {
	Indicator string
	Need      int
	Have      int
}

func (e *DataInsufficiencyError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d candles, have %d", e.Indicator, e.Need, e.Have)
}

// ExternalFetchError reports a failed price or kline fetch. Handled via the
// feed fallback chain; only surfaced when a caller bypasses the chain.
type ExternalFetchError struct {
	Endpoint string
	Err      error
}

func (e *ExternalFetchError) Error() string {
	return "fetch " + e.Endpoint + ": " + e.Err.Error()
}

func (e *ExternalFetchError) Unwrap() error { return e.Err }

// LimitExceededError reports a breached execution limit (daily order cap,
// max order notional). Fatal for the call; account state is unchanged.
type LimitExceededError struct {
	Limit string
	Msg   string
}

func (e *LimitExceededError) Error() string {
	return "limit exceeded: " + e.Limit + ": " + e.Msg
}

// ErrAlreadyFilled is returned when a cancellation loses the race against a
// concurrent fill. The fill wins; this is not a state corruption.
var ErrAlreadyFilled = errors.New("cancellation failed: already filled")

// ErrOrderNotFound is returned when an order ID is unknown.
var ErrOrderNotFound = errors.New("order not found")

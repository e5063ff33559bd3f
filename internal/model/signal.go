package model

import (
	"encoding/json"
	"time"
)

// Action is the aggregate trading decision of the signal generator.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// StrategySignal is one evaluation-cycle output of the signal generator.
// Immutable after creation; the generator keeps a bounded history of them.
type StrategySignal struct {
	ID         string             `json:"id"`
	TS         time.Time          `json:"ts"`
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Price      float64            `json:"price"`
	Confidence float64            `json:"confidence"` // winning direction's total weight, in [0,1]
	Reason     string             `json:"reason"`
	Indicators map[string]float64 `json:"indicators"` // name → value snapshot at evaluation time
}

// JSON returns the JSON-encoded signal.
func (s *StrategySignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

package model

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of update carried by an Event.
type EventType string

const (
	EventOrderUpdate    EventType = "order_update"
	EventPositionUpdate EventType = "position_update"
	EventBalanceUpdate  EventType = "balance_update"
	EventSignal         EventType = "signal"
	EventError          EventType = "error"
)

// Event is a multicast update published by the core to any subscriber
// (gateway, Redis publisher, logging). Delivery is at-least-once with FIFO
// ordering within one type per account; no ordering is guaranteed across
// different event types.
type Event struct {
	Type    EventType `json:"type"`
	Account string    `json:"account"`
	TS      time.Time `json:"ts"`
	Data    any       `json:"data"`
}

// BalanceUpdate is the payload of EventBalanceUpdate.
type BalanceUpdate struct {
	Account  string  `json:"account"`
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
}

// ErrorEvent is the payload of EventError.
type ErrorEvent struct {
	Source string `json:"source"`
	Msg    string `json:"msg"`
}

// JSON returns the JSON-encoded event.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

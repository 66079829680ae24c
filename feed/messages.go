// Package feed streams committed settlement events to websocket
// subscribers. Channels are event types; a subscriber only receives the
// channels it subscribed to.
package feed

import (
	"time"

	"github.com/kaifufi/nftspace-settlement-go/events"
)

const (
	// Heartbeat interval
	HeartbeatInterval = 30 * time.Second

	// Reconnect settings
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// WebSocket action types
const (
	ActionHeartbeat   = "HEARTBEAT"
	ActionSubscribe   = "SUBSCRIBE"
	ActionUnsubscribe = "UNSUBSCRIBE"
	ActionEvent       = "EVENT"
	ActionError       = "ERROR"
)

// WebSocket channel types
const (
	ChannelOrderCancelled      = string(events.OrderCancelled)
	ChannelSettlementCompleted = string(events.SettlementCompleted)
	ChannelRentalStarted       = string(events.RentalStarted)
	ChannelRentalReturned      = string(events.RentalReturned)
	ChannelBundleCreated       = string(events.BundleCreated)
	ChannelBundleUnwrapped     = string(events.BundleUnwrapped)
)

// Channels lists every channel the feed serves.
var Channels = []string{
	ChannelOrderCancelled,
	ChannelSettlementCompleted,
	ChannelRentalStarted,
	ChannelRentalReturned,
	ChannelBundleCreated,
	ChannelBundleUnwrapped,
}

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Action string `json:"action"`
}

// SubscribeMessage represents a (un)subscription request and its acknowledgement
type SubscribeMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// HeartbeatMessage represents a heartbeat message
type HeartbeatMessage struct {
	Action string `json:"action"`
}

// EventMessage carries one committed event to a subscriber
type EventMessage struct {
	Action  string       `json:"action"`
	Channel string       `json:"channel"`
	Event   events.Event `json:"event"`
}

// ErrorMessage reports a rejected request
type ErrorMessage struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

func knownChannel(channel string) bool {
	for _, c := range Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// Package events defines the notifications settlement engines emit once a
// call has committed, and the sinks that consume them.
package events

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Type names an event; indexers subscribe by type.
type Type string

const (
	OrderCancelled      Type = "order.cancelled"
	SettlementCompleted Type = "settlement.completed"
	RentalStarted       Type = "rental.started"
	RentalReturned      Type = "rental.returned"
	BundleCreated       Type = "bundle.created"
	BundleUnwrapped     Type = "bundle.unwrapped"
)

// Event is one notification emitted by a committed call.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Type      Type              `json:"type"`
	Contract  common.Address    `json:"contract"`
	Timestamp uint64            `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

// New creates an event with a fresh id.
func New(typ Type, contract common.Address, timestamp uint64) Event {
	return Event{
		ID:        uuid.New(),
		Type:      typ,
		Contract:  contract,
		Timestamp: timestamp,
		Data:      make(map[string]string),
	}
}

// With sets a data field and returns the event for chaining.
func (e Event) With(key string, value interface{}) Event {
	switch v := value.(type) {
	case string:
		e.Data[key] = v
	case common.Address:
		e.Data[key] = v.Hex()
	case common.Hash:
		e.Data[key] = v.Hex()
	case *big.Int:
		if v == nil {
			e.Data[key] = "0"
		} else {
			e.Data[key] = v.String()
		}
	case bool:
		if v {
			e.Data[key] = "true"
		} else {
			e.Data[key] = "false"
		}
	case uint64:
		e.Data[key] = new(big.Int).SetUint64(v).String()
	default:
		logrus.WithField("key", key).Warn("Unsupported event field type")
	}
	return e
}

// Sink consumes published events.
type Sink interface {
	Publish(evt Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(evt Event) { f(evt) }

// Multi fans every event out to each sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(evt Event) {
		for _, s := range sinks {
			if s != nil {
				s.Publish(evt)
			}
		}
	})
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns the recorded events in publish order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of typ.
func (r *Recorder) OfType(typ Type) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink writes every event to a logger at info level.
type LogSink struct {
	Logger *logrus.Logger
}

func (s LogSink) Publish(evt Event) {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fields := logrus.Fields{
		"event_id": evt.ID.String(),
		"contract": evt.Contract.Hex(),
	}
	for k, v := range evt.Data {
		fields[k] = v
	}
	logger.WithFields(fields).Info(string(evt.Type))
}

package amqp

import (
	"context"
	"encoding/json"

	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/log"
)

// RoutingPrefix prefixes every ledger routing key, e.g.
// "ledger.transaction.added". Bind "ledger.#" to receive everything.
const RoutingPrefix = "ledger."

// LedgerMessage is the wire form of a core.LedgerEvent.
type LedgerMessage struct {
	core.LedgerEvent
	RequestID string `json:"request_id,omitempty"`
}

// NewLedgerMessage wraps ev, carrying the request ID found in ctx.
func NewLedgerMessage(ctx context.Context, ev core.LedgerEvent) *LedgerMessage {
	return &LedgerMessage{LedgerEvent: ev, RequestID: log.RequestID(ctx)}
}

// RoutingKey returns the topic routing key for the message's operation.
func (m *LedgerMessage) RoutingKey() string {
	return RoutingPrefix + string(m.Op)
}

// ToJSON converts the message to JSON bytes
func (m *LedgerMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerMessageFromJSON(data []byte) (*LedgerMessage, error) {
	var msg LedgerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

package checkout

import (
	"sync"

	"github.com/cryptoshop/settlement/types"
)

// SettlementNotifier is the completion-notification channel from the
// external payment leg. The transport (return-URL parameter, message queue,
// inter-window message) is the caller's concern; the core only registers a
// handler.
type SettlementNotifier interface {
	OnSettlementComplete(handler func(currency types.Currency))
}

// ChannelNotifier is an in-process SettlementNotifier. The process hosting
// the payment-leg callback publishes into it.
type ChannelNotifier struct {
	mu       sync.Mutex
	handlers []func(types.Currency)
}

func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{}
}

func (n *ChannelNotifier) OnSettlementComplete(handler func(types.Currency)) {
	n.mu.Lock()
	n.handlers = append(n.handlers, handler)
	n.mu.Unlock()
}

// Publish fans the completion signal out to every registered handler.
func (n *ChannelNotifier) Publish(currency types.Currency) {
	n.mu.Lock()
	handlers := make([]func(types.Currency), len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()

	for _, h := range handlers {
		h(currency)
	}
}

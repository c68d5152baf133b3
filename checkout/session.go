package checkout

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrSessionConsumed means the session was already handed to the payment
// orchestrator once; a second submission must start a new checkout.
var ErrSessionConsumed = errors.New("checkout session already consumed")

// Session is the immutable summary bridging checkout and payment. It is
// never persisted; payment consumes it exactly once and discards it.
type Session struct {
	AddressID  uuid.UUID
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Shipping   decimal.Decimal
	Total      decimal.Decimal
	CouponCode string

	consumed atomic.Bool
}

// Consume marks the session used. Only the first caller succeeds.
func (s *Session) Consume() error {
	if !s.consumed.CompareAndSwap(false, true) {
		return ErrSessionConsumed
	}
	return nil
}

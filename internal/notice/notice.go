package notice

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	inErrors "github.com/shopaura/storefront/internal/errors"
	"github.com/shopaura/storefront/internal/log"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Codes let the presentation layer word specific failures differently, the
// 429 "slow down" message in particular.
type Code string

const (
	CodeGeneric          Code = "generic"
	CodeAuthRequired     Code = "auth_required"
	CodeSessionExpired   Code = "session_expired"
	CodeNetwork          Code = "network"
	CodeRateLimited      Code = "rate_limited"
	CodeValidation       Code = "validation"
	CodeCartUpdated      Code = "cart_updated"
	CodeWishlistUpdated  Code = "wishlist_updated"
	CodeCouponApplied    Code = "coupon_applied"
	CodeOrderPlaced      Code = "order_placed"
	CodePaymentCaptured  Code = "payment_captured"
	CodePaymentCancelled Code = "payment_cancelled"
	CodePaymentFailed    Code = "payment_failed"
)

type Notice struct {
	Level   Level
	Code    Code
	Message string
}

// Bus decouples business flows from presentation: flows publish, the shell
// consumes. Publish never blocks; a full buffer drops the notice since it is
// advisory feedback, not a durable queue.
type Bus struct {
	ch chan Notice
}

func NewBus(size int) *Bus {
	if size <= 0 {
		size = 16
	}
	return &Bus{ch: make(chan Notice, size)}
}

func (b *Bus) Publish(c context.Context, n Notice) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Bus Publish").
		Str("noticeCode", string(n.Code)).
		Logger()

	select {
	case b.ch <- n:
	default:
		logger.Warn().Msgf("notice buffer full, dropping notice=%s", n.Message)
	}
}

func (b *Bus) C() <-chan Notice {
	return b.ch
}

// CodeFor maps a failure to its notice code so the shell can word rate
// limiting and session expiry distinctly from the generic path.
func CodeFor(err error) Code {
	switch {
	case errors.Is(err, inErrors.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, inErrors.ErrNetwork):
		return CodeNetwork
	case errors.Is(err, inErrors.ErrSessionExpired):
		return CodeSessionExpired
	case errors.Is(err, inErrors.ErrValidation):
		return CodeValidation
	default:
		return CodeGeneric
	}
}

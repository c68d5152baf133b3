package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/shopaura/storefront/cart"
	"github.com/shopaura/storefront/checkout/pkg/request"
	"github.com/shopaura/storefront/checkout/pkg/response"
	"github.com/shopaura/storefront/internal/config"
	inErrors "github.com/shopaura/storefront/internal/errors"
	"github.com/shopaura/storefront/internal/httpclient"
	"github.com/shopaura/storefront/internal/log"
	"github.com/shopaura/storefront/internal/notice"
)

var tracer = otel.Tracer("storefront/checkout")

var (
	ErrCartEmpty       = errors.New("cart is empty")
	ErrAddressRequired = errors.New("delivery address is required")
	ErrCheckoutLocked  = errors.New("checkout session already built")
)

// Calculator computes the order summary from the live cart, the static
// shipping rule, and at most one applied coupon.
type Calculator struct {
	client *httpclient.Client
	cart   *cart.Manager
	bus    *notice.Bus

	shippingCharge        decimal.Decimal
	freeShippingThreshold decimal.Decimal

	mu     sync.Mutex
	coupon *response.Coupon
	built  bool
}

func NewCalculator(client *httpclient.Client, cartMgr *cart.Manager, bus *notice.Bus, cfg config.Checkout) *Calculator {
	return &Calculator{
		client:                client,
		cart:                  cartMgr,
		bus:                   bus,
		shippingCharge:        decimal.NewFromInt(cfg.ShippingCharge),
		freeShippingThreshold: decimal.NewFromInt(cfg.FreeShippingThreshold),
	}
}

// Shipping is the fixed charge below the free-shipping threshold, zero at or
// above it.
func (cal *Calculator) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(cal.freeShippingThreshold) {
		return decimal.Zero
	}
	return cal.shippingCharge
}

// ApplyCoupon validates the code against the current subtotal. Only a
// successful validation replaces the applied coupon; failure leaves any
// previously applied one untouched.
func (cal *Calculator) ApplyCoupon(c context.Context, code string) (decimal.Decimal, error) {
	c, span := tracer.Start(c, "Calculator ApplyCoupon")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Calculator ApplyCoupon").
		Str(log.KeyCouponCode, code).
		Logger()

	if cal.locked() {
		err := fmt.Errorf("cannot apply coupon with error=%w", ErrCheckoutLocked)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		return decimal.Zero, err
	}
	subtotal := cal.cart.Total()
	if subtotal.IsZero() {
		err := fmt.Errorf("cannot apply coupon with error=%w", ErrCartEmpty)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		return decimal.Zero, err
	}

	reqBody := request.ValidateCoupon{Code: code, ItemsPrice: subtotal}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating coupon request: %v with error=%w", err, inErrors.ErrValidation)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return decimal.Zero, err
	}

	resp := response.ValidateCoupon{}
	if err := cal.client.Post(c, "/checkout/validate-coupon", reqBody, &resp); err != nil {
		err = fmt.Errorf("failed validating coupon with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		cal.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeFor(err),
			Message: "Invalid coupon code",
		})
		return decimal.Zero, err
	}

	cal.mu.Lock()
	cal.coupon = &response.Coupon{Code: resp.Coupon.Code, DiscountAmount: resp.Discount}
	cal.mu.Unlock()

	logger.Info().Msgf("applied coupon with discount=%s", resp.Discount.String())
	cal.bus.Publish(c, notice.Notice{
		Level:   notice.LevelSuccess,
		Code:    notice.CodeCouponApplied,
		Message: fmt.Sprintf("Coupon applied! You saved %s", resp.Discount.String()),
	})
	return resp.Discount, nil
}

// RemoveCoupon clears the applied coupon server-side and locally.
func (cal *Calculator) RemoveCoupon(c context.Context) error {
	c, span := tracer.Start(c, "Calculator RemoveCoupon")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Calculator RemoveCoupon").
		Logger()

	if cal.locked() {
		err := fmt.Errorf("cannot remove coupon with error=%w", ErrCheckoutLocked)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		return err
	}
	if err := cal.client.Post(c, "/checkout/remove-coupon", nil, nil); err != nil {
		err = fmt.Errorf("failed removing coupon with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	cal.mu.Lock()
	cal.coupon = nil
	cal.mu.Unlock()
	logger.Info().Msg("removed coupon")
	return nil
}

func (cal *Calculator) Coupon() (response.Coupon, bool) {
	cal.mu.Lock()
	defer cal.mu.Unlock()
	if cal.coupon == nil {
		return response.Coupon{}, false
	}
	return *cal.coupon, true
}

func (cal *Calculator) Discount() decimal.Decimal {
	cal.mu.Lock()
	defer cal.mu.Unlock()
	if cal.coupon == nil {
		return decimal.Zero
	}
	return cal.coupon.DiscountAmount
}

// Total is subtotal plus shipping minus discount, clamped at zero so an
// oversized discount can never produce a negative payable amount.
func (cal *Calculator) Total() decimal.Decimal {
	subtotal := cal.cart.Total()
	total := subtotal.Add(cal.Shipping(subtotal)).Sub(cal.Discount())
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (cal *Calculator) locked() bool {
	cal.mu.Lock()
	defer cal.mu.Unlock()
	return cal.built
}

// Reset starts a new checkout: the applied coupon is dropped and the
// calculator accepts coupon changes again.
func (cal *Calculator) Reset() {
	cal.mu.Lock()
	defer cal.mu.Unlock()
	cal.coupon = nil
	cal.built = false
}

// BuildSession freezes the summary for payment. It fails when the cart went
// empty in the meantime so checkout cannot proceed on stale data. Once a
// session is built the calculator rejects coupon changes until Reset.
func (cal *Calculator) BuildSession(c context.Context, addressID uuid.UUID) (*Session, error) {
	c, span := tracer.Start(c, "Calculator BuildSession")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Calculator BuildSession").
		Str(log.KeyAddressID, addressID.String()).
		Logger()

	if cal.locked() {
		err := fmt.Errorf("cannot build checkout session with error=%w", ErrCheckoutLocked)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		return nil, err
	}
	subtotal := cal.cart.Total()
	if subtotal.IsZero() {
		err := fmt.Errorf("cannot build checkout session with error=%w", ErrCartEmpty)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		return nil, err
	}
	if addressID == uuid.Nil {
		err := fmt.Errorf("cannot build checkout session with error=%w", ErrAddressRequired)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		cal.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeValidation,
			Message: "Please select a delivery address",
		})
		return nil, err
	}

	couponCode := ""
	if coupon, ok := cal.Coupon(); ok {
		couponCode = coupon.Code
	}

	session := &Session{
		AddressID:  addressID,
		Subtotal:   subtotal,
		Discount:   cal.Discount(),
		Shipping:   cal.Shipping(subtotal),
		Total:      cal.Total(),
		CouponCode: couponCode,
	}
	cal.mu.Lock()
	cal.built = true
	cal.mu.Unlock()
	logger.Info().Msgf("built checkout session with total=%s", session.Total.String())
	return session, nil
}

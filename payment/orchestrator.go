package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/shopaura/storefront/auth"
	"github.com/shopaura/storefront/cart"
	"github.com/shopaura/storefront/checkout"
	"github.com/shopaura/storefront/internal/config"
	inErrors "github.com/shopaura/storefront/internal/errors"
	"github.com/shopaura/storefront/internal/httpclient"
	"github.com/shopaura/storefront/internal/log"
	"github.com/shopaura/storefront/internal/notice"
	"github.com/shopaura/storefront/payment/pkg/request"
	"github.com/shopaura/storefront/payment/pkg/response"
)

var tracer = otel.Tracer("storefront/payment")

const (
	MethodCOD    = "cod"
	MethodOnline = "online"
)

var (
	ErrPaymentInFlight     = errors.New("payment already in progress")
	ErrAttemptSettled      = errors.New("payment attempt already settled")
	ErrResetRequired       = errors.New("previous attempt must be reset first")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrPaymentCancelled    = errors.New("payment cancelled by buyer")
	ErrVerificationFailed  = errors.New("payment verification failed")
	ErrMissingGatewayOrder = errors.New("missing gateway order descriptor")
	ErrNoOutcome           = errors.New("gateway returned without an outcome")
)

// Result is what a settled attempt hands back to the shell. PaymentCaptured
// distinguishes a verified online payment from a plain placed order.
type Result struct {
	OrderID         uuid.UUID
	OrderNumber     string
	PaymentCaptured bool
}

// Orchestrator drives one payment attempt at a time: create the server-side
// order, branch on method, run the gateway handshake, verify, finalize. The
// internal order id is captured once at creation and threaded through every
// later call; gateway identifiers never stand in for it.
type Orchestrator struct {
	client  *httpclient.Client
	cart    *cart.Manager
	gate    *auth.Gate
	bus     *notice.Bus
	gateway Gateway
	cfg     config.Gateway

	// loaded is set only after a successful gateway load, so a transient
	// load failure is retried on the next attempt instead of being cached
	// for the life of the process.
	loaded atomic.Bool

	mu      sync.Mutex
	state   State
	orderID uuid.UUID
}

func NewOrchestrator(
	client *httpclient.Client,
	cartMgr *cart.Manager,
	gate *auth.Gate,
	bus *notice.Bus,
	gateway Gateway,
	cfg config.Gateway,
) *Orchestrator {
	return &Orchestrator{
		client:  client,
		cart:    cartMgr,
		gate:    gate,
		bus:     bus,
		gateway: gateway,
		cfg:     cfg,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(c context.Context, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator transition").
		Str(log.KeyPaymentState, o.state.String()).
		Logger()
	if !canTransition(o.state, to) {
		logger.Error().Msgf("illegal transition from=%s to=%s", o.state.String(), to.String())
		o.state = StateError
		return
	}
	logger.Debug().Msgf("transition from=%s to=%s", o.state.String(), to.String())
	o.state = to
}

// Reset re-arms the machine after a cancelled or errored attempt. Completed
// and verify-failed attempts stay terminal.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCancelled && o.state != StateError {
		return fmt.Errorf("cannot reset from state=%s", o.state.String())
	}
	o.state = StateInit
	o.orderID = uuid.Nil
	return nil
}

// Submit consumes the checkout session exactly once and runs the attempt to
// a terminal or recoverable state. A second call while one is outstanding is
// rejected outright.
func (o *Orchestrator) Submit(c context.Context, session *checkout.Session, method string) (*Result, error) {
	c, span := tracer.Start(c, "Orchestrator Submit")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator Submit").
		Str(log.KeyPaymentMethod, method).
		Logger()

	if err := o.gate.Require(c); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.state != StateInit {
		current := o.state
		o.mu.Unlock()
		cause := ErrPaymentInFlight
		switch {
		case current.Terminal():
			cause = ErrAttemptSettled
		case current == StateCancelled || current == StateError:
			cause = ErrResetRequired
		}
		err := fmt.Errorf("rejected submit in state=%s with error=%w", current.String(), cause)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		return nil, err
	}
	o.state = StateOrderCreating
	o.mu.Unlock()

	if err := session.Consume(); err != nil {
		o.transition(c, StateInit)
		err = fmt.Errorf("rejected submit with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		return nil, err
	}

	reqBody := request.CreateOrder{
		AddressId:     session.AddressID,
		PaymentMethod: method,
		CouponCode:    session.CouponCode,
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(c, reqBody); err != nil {
		o.transition(c, StateInit)
		err = fmt.Errorf("failed validating create order request: %v with error=%w", err, inErrors.ErrValidation)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	// One idempotency key per attempt: a transport-level retry of this call
	// cannot create a second order.
	attemptKey := uuid.NewString()
	logger = logger.With().Str(log.KeyAttemptID, attemptKey).Logger()
	c = logger.WithContext(c)

	resp := response.CreateOrder{}
	if err := o.client.PostWithKey(c, "/payment/create-order", attemptKey, reqBody, &resp); err != nil {
		o.transition(c, StateError)
		err = fmt.Errorf("failed creating order with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		o.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeFor(err),
			Message: "Payment failed",
		})
		return nil, err
	}

	o.mu.Lock()
	o.orderID = resp.Order.ID
	o.mu.Unlock()
	logger = logger.With().Str(log.KeyOrderID, resp.Order.ID.String()).Logger()
	c = logger.WithContext(c)
	logger.Info().Msgf("created order orderNumber=%s", resp.Order.OrderNumber)

	if method == MethodCOD {
		return o.settleCOD(c, resp)
	}
	return o.settleOnline(c, resp)
}

// settleCOD: the creation response alone is authoritative, the gateway and
// verification never enter the picture.
func (o *Orchestrator) settleCOD(c context.Context, created response.CreateOrder) (*Result, error) {
	c, span := tracer.Start(c, "Orchestrator settleCOD")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator settleCOD").
		Logger()

	o.clearCart(c)
	o.transition(c, StateCompletedCOD)
	logger.Info().Msg("order placed with cash on delivery")
	o.bus.Publish(c, notice.Notice{
		Level:   notice.LevelSuccess,
		Code:    notice.CodeOrderPlaced,
		Message: "Order placed successfully!",
	})
	return &Result{
		OrderID:         created.Order.ID,
		OrderNumber:     created.Order.OrderNumber,
		PaymentCaptured: false,
	}, nil
}

func (o *Orchestrator) loadGateway(c context.Context) error {
	if o.loaded.Load() {
		return nil
	}
	if err := o.gateway.Load(c); err != nil {
		return err
	}
	o.loaded.Store(true)
	return nil
}

func (o *Orchestrator) settleOnline(c context.Context, created response.CreateOrder) (*Result, error) {
	c, span := tracer.Start(c, "Orchestrator settleOnline")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator settleOnline").
		Logger()

	if created.GatewayOrder == nil {
		o.transition(c, StateError)
		err := fmt.Errorf("cannot open gateway with error=%w", ErrMissingGatewayOrder)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	if err := o.loadGateway(c); err != nil {
		o.transition(c, StateError)
		err = fmt.Errorf("failed loading gateway integration: %v with error=%w", err, ErrGatewayUnavailable)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		o.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodePaymentFailed,
			Message: "Failed to load payment gateway. Please try again.",
		})
		return nil, err
	}

	o.transition(c, StateGatewayOpen)

	co := Checkout{
		KeyID:          o.cfg.KeyId,
		Amount:         created.GatewayOrder.Amount,
		Currency:       created.GatewayOrder.Currency,
		GatewayOrderID: created.GatewayOrder.ID,
		Name:           o.cfg.Name,
		Description:    fmt.Sprintf("Order #%s", created.Order.OrderNumber),
		Prefill: Prefill{
			Name:    created.Order.User.Name,
			Email:   created.Order.User.Email,
			Contact: created.Order.ShippingAddress.Phone,
		},
		ThemeColor: o.cfg.ThemeColor,
	}

	var (
		result     *Result
		settleErr  error
		hookCalled bool
	)
	hooks := Hooks{
		OnSuccess: func(c context.Context, cb Callback) {
			hookCalled = true
			result, settleErr = o.verify(c, created, cb)
		},
		OnDismiss: func(c context.Context) {
			hookCalled = true
			settleErr = o.dismiss(c)
		},
	}

	logger.Info().Msgf("opening gateway widget for gatewayOrderId=%s", created.GatewayOrder.ID)
	if err := o.gateway.Open(c, co, hooks); err != nil {
		o.transition(c, StateError)
		err = fmt.Errorf("failed opening gateway widget with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if !hookCalled {
		o.transition(c, StateError)
		err := fmt.Errorf("gateway widget closed with error=%w", ErrNoOutcome)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	return result, settleErr
}

// verify runs exactly once per successful gateway callback, always with the
// internal order id captured at creation.
func (o *Orchestrator) verify(c context.Context, created response.CreateOrder, cb Callback) (*Result, error) {
	c, span := tracer.Start(c, "Orchestrator verify")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator verify").
		Logger()

	o.transition(c, StateVerifying)

	o.mu.Lock()
	orderID := o.orderID
	o.mu.Unlock()

	reqBody := request.VerifyPayment{
		GatewayOrderId:   cb.GatewayOrderID,
		GatewayPaymentId: cb.GatewayPaymentID,
		Signature:        cb.Signature,
		OrderId:          orderID,
	}
	resp := response.Verify{}
	if err := o.client.Post(c, "/payment/verify", reqBody, &resp); err != nil {
		o.transition(c, StateVerifyFailed)
		o.reportFailure(c, orderID, "payment verification failed")
		err = fmt.Errorf("failed verifying payment: %v with error=%w", err, ErrVerificationFailed)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		o.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodePaymentFailed,
			Message: "Payment verification failed",
		})
		return nil, err
	}

	o.clearCart(c)
	o.transition(c, StateCompletedOnline)
	logger.Info().Msg("payment verified")
	o.bus.Publish(c, notice.Notice{
		Level:   notice.LevelSuccess,
		Code:    notice.CodePaymentCaptured,
		Message: "Payment successful!",
	})
	return &Result{
		OrderID:         orderID,
		OrderNumber:     created.Order.OrderNumber,
		PaymentCaptured: true,
	}, nil
}

// dismiss records the buyer walking away from the widget. The attempt
// becomes retryable after Reset.
func (o *Orchestrator) dismiss(c context.Context) error {
	c, span := tracer.Start(c, "Orchestrator dismiss")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator dismiss").
		Logger()

	o.mu.Lock()
	orderID := o.orderID
	o.mu.Unlock()

	o.reportFailure(c, orderID, "payment cancelled by buyer")
	o.transition(c, StateCancelled)
	logger.Warn().Msg("payment cancelled by buyer")
	o.bus.Publish(c, notice.Notice{
		Level:   notice.LevelError,
		Code:    notice.CodePaymentCancelled,
		Message: "Payment cancelled",
	})
	return ErrPaymentCancelled
}

// reportFailure is best-effort: the server note helps support, but failing
// to record it never fails the flow.
func (o *Orchestrator) reportFailure(c context.Context, orderID uuid.UUID, reason string) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator reportFailure").
		Str(log.KeyOrderID, orderID.String()).
		Logger()

	reqBody := request.PaymentFailure{OrderId: orderID, Error: reason}
	if err := o.client.Post(c, "/payment/failure", reqBody, nil); err != nil {
		logger.Warn().Msgf("failed reporting payment failure with error=%s", err.Error())
	}
}

func (o *Orchestrator) clearCart(c context.Context) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator clearCart").
		Logger()

	if err := o.cart.Clear(c); err != nil {
		logger.Warn().Msgf("failed clearing cart after order with error=%s", err.Error())
	}
}

// Status fetches the server's view of an order's payment state.
func (o *Orchestrator) Status(c context.Context, orderID uuid.UUID) (response.Status, error) {
	c, span := tracer.Start(c, "Orchestrator Status")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator Status").
		Str(log.KeyOrderID, orderID.String()).
		Logger()

	resp := response.Status{}
	if err := o.client.Get(c, "/payment/status/"+orderID.String(), &resp); err != nil {
		err = fmt.Errorf("failed fetching payment status with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Status{}, err
	}
	return resp, nil
}

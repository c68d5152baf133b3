package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopaura/storefront/auth"
	"github.com/shopaura/storefront/cart"
	"github.com/shopaura/storefront/checkout"
	"github.com/shopaura/storefront/internal/config"
	"github.com/shopaura/storefront/internal/httpclient"
	"github.com/shopaura/storefront/internal/notice"
	"github.com/shopaura/storefront/payment/pkg/request"
	"github.com/shopaura/storefront/payment/pkg/response"
)

type fakePaymentBackend struct {
	mu             sync.Mutex
	orderID        uuid.UUID
	gatewayOrderID string
	failVerify     bool

	createCalls  int
	idemKeys     []string
	verifyCalls  int
	verifyBodies []request.VerifyPayment
	failureCalls int
	failureBody  request.PaymentFailure
	clearCalls   int
}

func newFakePaymentBackend() *fakePaymentBackend {
	return &fakePaymentBackend{
		orderID:        uuid.New(),
		gatewayOrderID: "gw_order_001",
	}
}

func (f *fakePaymentBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/payment/create-order":
		f.createCalls++
		f.idemKeys = append(f.idemKeys, r.Header.Get("Idempotency-Key"))
		reqBody := request.CreateOrder{}
		_ = json.NewDecoder(r.Body).Decode(&reqBody)
		resp := response.CreateOrder{Success: true}
		resp.Order.ID = f.orderID
		resp.Order.OrderNumber = "SA-1001"
		resp.Order.Status = response.OrderStatusPending
		resp.Order.PaymentMethod = reqBody.PaymentMethod
		resp.Order.User.Name = "Asha"
		resp.Order.User.Email = "asha@example.com"
		if reqBody.PaymentMethod == MethodOnline {
			resp.GatewayOrder = &response.GatewayOrder{
				ID:       f.gatewayOrderID,
				Amount:   45000,
				Currency: "INR",
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	case r.Method == http.MethodPost && r.URL.Path == "/payment/verify":
		f.verifyCalls++
		reqBody := request.VerifyPayment{}
		_ = json.NewDecoder(r.Body).Decode(&reqBody)
		f.verifyBodies = append(f.verifyBodies, reqBody)
		if f.failVerify {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "signature mismatch"})
			return
		}
		_ = json.NewEncoder(w).Encode(response.Verify{Success: true, PaymentStatus: "paid"})
	case r.Method == http.MethodPost && r.URL.Path == "/payment/failure":
		f.failureCalls++
		_ = json.NewDecoder(r.Body).Decode(&f.failureBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	case r.Method == http.MethodDelete && r.URL.Path == "/cart/clear":
		f.clearCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "not found"})
	}
}

type fakeGateway struct {
	loadErr   error
	loadCalls int
	dismiss   bool
	openCalls int
	opened    Checkout
}

func (g *fakeGateway) Load(c context.Context) error {
	g.loadCalls++
	return g.loadErr
}

func (g *fakeGateway) Open(c context.Context, co Checkout, hooks Hooks) error {
	g.openCalls++
	g.opened = co
	if g.dismiss {
		hooks.OnDismiss(c)
		return nil
	}
	hooks.OnSuccess(c, Callback{
		GatewayOrderID:   co.GatewayOrderID,
		GatewayPaymentID: "gw_pay_007",
		Signature:        "sig_abc",
	})
	return nil
}

func newTestOrchestrator(t *testing.T, backend http.Handler, gateway Gateway) *Orchestrator {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	session := auth.NewSession()
	session.Login("session-token", auth.User{Role: auth.RoleBuyer})
	bus := notice.NewBus(64)
	gate := auth.NewGate(session, bus)
	client := httpclient.New(
		config.Api{BaseUrl: server.URL, TimeoutSeconds: 5},
		session.Token,
		nil,
	)
	cartMgr := cart.NewManager(client, gate, bus)
	return NewOrchestrator(client, cartMgr, gate, bus, gateway, config.Gateway{
		KeyId: "key_test",
		Name:  "ShopAura",
	})
}

func newSession() *checkout.Session {
	return &checkout.Session{
		AddressID: uuid.New(),
		Subtotal:  decimal.NewFromInt(400),
		Shipping:  decimal.NewFromInt(50),
		Total:     decimal.NewFromInt(450),
	}
}

func TestCODCompletesWithoutVerify(t *testing.T) {
	backend := newFakePaymentBackend()
	gateway := &fakeGateway{}
	orchestrator := newTestOrchestrator(t, backend, gateway)
	c := context.Background()

	result, err := orchestrator.Submit(c, newSession(), MethodCOD)
	require.NoError(t, err)
	assert.Equal(t, backend.orderID, result.OrderID)
	assert.Equal(t, "SA-1001", result.OrderNumber)
	assert.False(t, result.PaymentCaptured)
	assert.Equal(t, StateCompletedCOD, orchestrator.State())
	assert.Equal(t, 0, backend.verifyCalls, "cod must never invoke verify")
	assert.Equal(t, 0, gateway.openCalls, "cod must never open the gateway")
	assert.Equal(t, 1, backend.clearCalls, "cart is cleared after a placed order")
}

func TestOnlineVerifiesOnceWithInternalOrderID(t *testing.T) {
	backend := newFakePaymentBackend()
	gateway := &fakeGateway{}
	orchestrator := newTestOrchestrator(t, backend, gateway)
	c := context.Background()

	result, err := orchestrator.Submit(c, newSession(), MethodOnline)
	require.NoError(t, err)
	assert.True(t, result.PaymentCaptured)
	assert.Equal(t, StateCompletedOnline, orchestrator.State())

	require.Equal(t, 1, backend.verifyCalls, "verify runs exactly once per successful callback")
	verify := backend.verifyBodies[0]
	assert.Equal(t, backend.orderID, verify.OrderId,
		"verify must carry the internal order id captured at creation")
	assert.Equal(t, backend.gatewayOrderID, verify.GatewayOrderId)
	assert.Equal(t, "gw_pay_007", verify.GatewayPaymentId)
	assert.Equal(t, 1, backend.clearCalls)

	assert.Equal(t, "key_test", gateway.opened.KeyID)
	assert.Equal(t, int64(45000), gateway.opened.Amount)
	assert.Equal(t, "Asha", gateway.opened.Prefill.Name)
}

func TestVerifyFailureIsTerminalForAttempt(t *testing.T) {
	backend := newFakePaymentBackend()
	backend.failVerify = true
	gateway := &fakeGateway{}
	orchestrator := newTestOrchestrator(t, backend, gateway)
	c := context.Background()

	_, err := orchestrator.Submit(c, newSession(), MethodOnline)
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, StateVerifyFailed, orchestrator.State())
	assert.Equal(t, 1, backend.verifyCalls)
	assert.Equal(t, 1, backend.failureCalls, "verification failure is reported best-effort")
	assert.Equal(t, backend.orderID, backend.failureBody.OrderId)
	assert.Equal(t, 0, backend.clearCalls, "cart survives an unpaid order")

	assert.Error(t, orchestrator.Reset(), "verify failure is terminal, not resettable")
}

func TestDismissIsRecoverable(t *testing.T) {
	backend := newFakePaymentBackend()
	gateway := &fakeGateway{dismiss: true}
	orchestrator := newTestOrchestrator(t, backend, gateway)
	c := context.Background()

	_, err := orchestrator.Submit(c, newSession(), MethodOnline)
	require.ErrorIs(t, err, ErrPaymentCancelled)
	assert.Equal(t, StateCancelled, orchestrator.State())
	assert.Equal(t, 1, backend.failureCalls, "dismiss is reported best-effort")
	assert.Equal(t, backend.orderID, backend.failureBody.OrderId)
	assert.Equal(t, 0, backend.verifyCalls)

	_, err = orchestrator.Submit(c, newSession(), MethodOnline)
	assert.ErrorIs(t, err, ErrResetRequired, "a cancelled attempt must be reset before retrying")

	require.NoError(t, orchestrator.Reset())
	assert.Equal(t, StateInit, orchestrator.State())

	gateway.dismiss = false
	result, err := orchestrator.Submit(c, newSession(), MethodOnline)
	require.NoError(t, err)
	assert.True(t, result.PaymentCaptured)

	require.Len(t, backend.idemKeys, 2)
	assert.NotEqual(t, backend.idemKeys[0], backend.idemKeys[1],
		"each attempt carries a fresh idempotency key")
}

func TestGatewayLoadFailureAbortsBeforeWidget(t *testing.T) {
	backend := newFakePaymentBackend()
	gateway := &fakeGateway{loadErr: errors.New("script unreachable")}
	orchestrator := newTestOrchestrator(t, backend, gateway)
	c := context.Background()

	_, err := orchestrator.Submit(c, newSession(), MethodOnline)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, StateError, orchestrator.State())
	assert.Equal(t, 0, gateway.openCalls, "widget must not open after a load failure")
	assert.Equal(t, 0, backend.verifyCalls)
	assert.Equal(t, 0, backend.clearCalls)

	require.NoError(t, orchestrator.Reset())
}

func TestGatewayLoadIsRetriedAfterTransientFailure(t *testing.T) {
	backend := newFakePaymentBackend()
	gateway := &fakeGateway{loadErr: errors.New("script unreachable")}
	orchestrator := newTestOrchestrator(t, backend, gateway)
	c := context.Background()

	_, err := orchestrator.Submit(c, newSession(), MethodOnline)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	require.NoError(t, orchestrator.Reset())

	gateway.loadErr = nil
	result, err := orchestrator.Submit(c, newSession(), MethodOnline)
	require.NoError(t, err, "a recovered gateway must settle the retry")
	assert.True(t, result.PaymentCaptured)
	assert.Equal(t, 2, gateway.loadCalls, "the failed load must not be cached")
}

func TestSecondSubmitIsRejected(t *testing.T) {
	backend := newFakePaymentBackend()
	orchestrator := newTestOrchestrator(t, backend, &fakeGateway{})
	c := context.Background()

	_, err := orchestrator.Submit(c, newSession(), MethodCOD)
	require.NoError(t, err)

	_, err = orchestrator.Submit(c, newSession(), MethodCOD)
	assert.ErrorIs(t, err, ErrAttemptSettled)
	assert.Equal(t, 1, backend.createCalls, "a settled attempt must not create another order")
}

func TestConsumedSessionCannotBeResubmitted(t *testing.T) {
	backend := newFakePaymentBackend()
	gateway := &fakeGateway{dismiss: true}
	orchestrator := newTestOrchestrator(t, backend, gateway)
	c := context.Background()

	session := newSession()
	_, err := orchestrator.Submit(c, session, MethodOnline)
	require.ErrorIs(t, err, ErrPaymentCancelled)
	require.NoError(t, orchestrator.Reset())

	_, err = orchestrator.Submit(c, session, MethodOnline)
	assert.ErrorIs(t, err, checkout.ErrSessionConsumed)
	assert.Equal(t, StateInit, orchestrator.State(), "a consumed session re-arms the machine")
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, canTransition(StateInit, StateOrderCreating))
	assert.True(t, canTransition(StateOrderCreating, StateCompletedCOD))
	assert.True(t, canTransition(StateOrderCreating, StateGatewayOpen))
	assert.True(t, canTransition(StateGatewayOpen, StateVerifying))
	assert.True(t, canTransition(StateGatewayOpen, StateCancelled))
	assert.True(t, canTransition(StateVerifying, StateCompletedOnline))
	assert.True(t, canTransition(StateVerifying, StateVerifyFailed))
	assert.True(t, canTransition(StateCancelled, StateInit))
	assert.True(t, canTransition(StateError, StateInit))

	assert.False(t, canTransition(StateInit, StateVerifying))
	assert.False(t, canTransition(StateCompletedCOD, StateInit))
	assert.False(t, canTransition(StateVerifyFailed, StateInit))
	assert.False(t, canTransition(StateCompletedOnline, StateGatewayOpen))
}

package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopaura/storefront/auth"
	"github.com/shopaura/storefront/cart"
	cartRes "github.com/shopaura/storefront/cart/pkg/response"
	"github.com/shopaura/storefront/checkout/pkg/request"
	"github.com/shopaura/storefront/checkout/pkg/response"
	"github.com/shopaura/storefront/internal/config"
	inErrors "github.com/shopaura/storefront/internal/errors"
	"github.com/shopaura/storefront/internal/httpclient"
	"github.com/shopaura/storefront/internal/notice"
)

// fixture serves a fixed cart and validates a single known coupon code.
type fixture struct {
	items      []cartRes.CartItem
	couponCode string
	discount   decimal.Decimal
}

func (f *fixture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/cart":
		resp := cartRes.Cart{Success: true}
		resp.Data.Items = f.items
		_ = json.NewEncoder(w).Encode(resp)
	case r.Method == http.MethodPost && r.URL.Path == "/checkout/validate-coupon":
		reqBody := request.ValidateCoupon{}
		_ = json.NewDecoder(r.Body).Decode(&reqBody)
		if reqBody.Code != f.couponCode {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Invalid coupon code"})
			return
		}
		_ = json.NewEncoder(w).Encode(response.ValidateCoupon{
			Success:  true,
			Coupon:   response.Coupon{Code: reqBody.Code, DiscountAmount: f.discount},
			Discount: f.discount,
		})
	case r.Method == http.MethodPost && r.URL.Path == "/checkout/remove-coupon":
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func line(price int64, quantity int32) cartRes.CartItem {
	return cartRes.CartItem{
		Product:  cartRes.Product{ID: uuid.New(), Price: decimal.NewFromInt(price)},
		Price:    decimal.NewFromInt(price),
		Quantity: quantity,
	}
}

func newTestCalculator(t *testing.T, f *fixture) (*Calculator, *cart.Manager) {
	t.Helper()
	server := httptest.NewServer(f)
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
	calculator := NewCalculator(client, cartMgr, bus, config.Checkout{
		ShippingCharge:        50,
		FreeShippingThreshold: 500,
	})
	return calculator, cartMgr
}

func TestCheckoutArithmetic(t *testing.T) {
	tests := []struct {
		name         string
		items        []cartRes.CartItem
		discount     int64
		wantShipping int64
		wantTotal    int64
	}{
		{
			name:         "below threshold pays the fixed charge",
			items:        []cartRes.CartItem{line(400, 1)},
			wantShipping: 50,
			wantTotal:    450,
		},
		{
			name:         "at or above threshold ships free",
			items:        []cartRes.CartItem{line(600, 1)},
			wantShipping: 0,
			wantTotal:    600,
		},
		{
			name:         "discount applies after shipping",
			items:        []cartRes.CartItem{line(600, 1)},
			discount:     100,
			wantShipping: 0,
			wantTotal:    500,
		},
		{
			name:         "coupon on a shipped order",
			items:        []cartRes.CartItem{line(100, 2)},
			discount:     50,
			wantShipping: 50,
			wantTotal:    200,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fixture{items: tt.items, couponCode: "SAVE", discount: decimal.NewFromInt(tt.discount)}
			calculator, cartMgr := newTestCalculator(t, f)
			c := context.Background()

			require.NoError(t, cartMgr.Fetch(c))
			if tt.discount > 0 {
				discount, err := calculator.ApplyCoupon(c, "SAVE")
				require.NoError(t, err)
				assert.True(t, discount.Equal(decimal.NewFromInt(tt.discount)))
			}

			subtotal := cartMgr.Total()
			assert.True(t, calculator.Shipping(subtotal).Equal(decimal.NewFromInt(tt.wantShipping)),
				"shipping=%s", calculator.Shipping(subtotal))
			assert.True(t, calculator.Total().Equal(decimal.NewFromInt(tt.wantTotal)),
				"total=%s", calculator.Total())
		})
	}
}

func TestTotalClampsAtZero(t *testing.T) {
	f := &fixture{
		items:      []cartRes.CartItem{line(100, 1)},
		couponCode: "HUGE",
		discount:   decimal.NewFromInt(500),
	}
	calculator, cartMgr := newTestCalculator(t, f)
	c := context.Background()

	require.NoError(t, cartMgr.Fetch(c))
	_, err := calculator.ApplyCoupon(c, "HUGE")
	require.NoError(t, err)

	assert.True(t, calculator.Total().IsZero(), "total=%s", calculator.Total())
}

func TestFailedCouponLeavesAppliedOneUntouched(t *testing.T) {
	f := &fixture{
		items:      []cartRes.CartItem{line(600, 1)},
		couponCode: "SAVE",
		discount:   decimal.NewFromInt(100),
	}
	calculator, cartMgr := newTestCalculator(t, f)
	c := context.Background()

	require.NoError(t, cartMgr.Fetch(c))
	_, err := calculator.ApplyCoupon(c, "SAVE")
	require.NoError(t, err)

	_, err = calculator.ApplyCoupon(c, "BOGUS")
	require.ErrorIs(t, err, inErrors.ErrValidation)

	coupon, ok := calculator.Coupon()
	require.True(t, ok, "prior coupon must survive a failed application")
	assert.Equal(t, "SAVE", coupon.Code)
	assert.True(t, calculator.Discount().Equal(decimal.NewFromInt(100)))
}

func TestRemoveCouponRestoresBaseline(t *testing.T) {
	f := &fixture{
		items:      []cartRes.CartItem{line(600, 1)},
		couponCode: "SAVE",
		discount:   decimal.NewFromInt(100),
	}
	calculator, cartMgr := newTestCalculator(t, f)
	c := context.Background()

	require.NoError(t, cartMgr.Fetch(c))
	_, err := calculator.ApplyCoupon(c, "SAVE")
	require.NoError(t, err)
	require.NoError(t, calculator.RemoveCoupon(c))

	assert.True(t, calculator.Discount().IsZero())
	assert.True(t, calculator.Total().Equal(decimal.NewFromInt(600)))
}

func TestBuildSessionRequiresCartAndAddress(t *testing.T) {
	f := &fixture{}
	calculator, cartMgr := newTestCalculator(t, f)
	c := context.Background()

	require.NoError(t, cartMgr.Fetch(c))
	_, err := calculator.BuildSession(c, uuid.New())
	assert.ErrorIs(t, err, ErrCartEmpty)

	f.items = []cartRes.CartItem{line(400, 1)}
	require.NoError(t, cartMgr.Fetch(c))
	_, err = calculator.BuildSession(c, uuid.Nil)
	assert.ErrorIs(t, err, ErrAddressRequired)

	session, err := calculator.BuildSession(c, uuid.New())
	require.NoError(t, err)
	assert.True(t, session.Total.Equal(decimal.NewFromInt(450)))
}

func TestBuiltCheckoutRejectsCouponChangesUntilReset(t *testing.T) {
	f := &fixture{
		items:      []cartRes.CartItem{line(600, 1)},
		couponCode: "SAVE",
		discount:   decimal.NewFromInt(100),
	}
	calculator, cartMgr := newTestCalculator(t, f)
	c := context.Background()

	require.NoError(t, cartMgr.Fetch(c))
	_, err := calculator.ApplyCoupon(c, "SAVE")
	require.NoError(t, err)

	_, err = calculator.BuildSession(c, uuid.New())
	require.NoError(t, err)

	_, err = calculator.ApplyCoupon(c, "SAVE")
	assert.ErrorIs(t, err, ErrCheckoutLocked)
	assert.ErrorIs(t, calculator.RemoveCoupon(c), ErrCheckoutLocked)
	_, err = calculator.BuildSession(c, uuid.New())
	assert.ErrorIs(t, err, ErrCheckoutLocked,
		"a second session must not be built from the frozen summary")

	calculator.Reset()
	_, ok := calculator.Coupon()
	assert.False(t, ok, "a new checkout starts without the old coupon")
	assert.True(t, calculator.Discount().IsZero())

	_, err = calculator.ApplyCoupon(c, "SAVE")
	require.NoError(t, err)
	session, err := calculator.BuildSession(c, uuid.New())
	require.NoError(t, err)
	assert.True(t, session.Total.Equal(decimal.NewFromInt(500)))
}

func TestSessionConsumedExactlyOnce(t *testing.T) {
	session := &Session{AddressID: uuid.New(), Total: decimal.NewFromInt(450)}
	require.NoError(t, session.Consume())
	assert.ErrorIs(t, session.Consume(), ErrSessionConsumed)
}

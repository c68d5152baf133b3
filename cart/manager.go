package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/shopaura/storefront/auth"
	"github.com/shopaura/storefront/cart/pkg/request"
	"github.com/shopaura/storefront/cart/pkg/response"
	inErrors "github.com/shopaura/storefront/internal/errors"
	"github.com/shopaura/storefront/internal/httpclient"
	"github.com/shopaura/storefront/internal/log"
	"github.com/shopaura/storefront/internal/notice"
)

var tracer = otel.Tracer("storefront/cart")

// State is the cart resource's request state. Mutations are rejected with
// ErrBusy while one is outstanding instead of relying on an advisory disable.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateError
)

// Manager holds the local view of the server-held cart. Every successful
// mutation response replaces the item list wholesale; there is no client-side
// merge, so the latest settled response wins.
type Manager struct {
	client *httpclient.Client
	gate   *auth.Gate
	bus    *notice.Bus

	mu     sync.Mutex
	state  State
	closed bool
	items  []response.CartItem
}

func NewManager(client *httpclient.Client, gate *auth.Gate, bus *notice.Bus) *Manager {
	return &Manager{client: client, gate: gate, bus: bus}
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return inErrors.ErrClosed
	}
	if m.state == StateLoading {
		return inErrors.ErrBusy
	}
	m.state = StateLoading
	return nil
}

// finish settles the outstanding request. A response that arrives after
// Close is discarded rather than applied to dead state.
func (m *Manager) finish(items []response.CartItem, replace bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if err != nil {
		m.state = StateError
		return
	}
	m.state = StateIdle
	if replace {
		m.items = items
	}
}

// Fetch pulls the canonical cart and replaces local state wholesale.
func (m *Manager) Fetch(c context.Context) error {
	c, span := tracer.Start(c, "Manager Fetch")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Fetch").
		Logger()

	if err := m.begin(); err != nil {
		return err
	}

	resp := response.Cart{}
	if err := m.client.Get(c, "/cart", &resp); err != nil {
		m.finish(nil, false, err)
		err = fmt.Errorf("failed fetching cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		m.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeFor(err),
			Message: "Failed to load cart",
		})
		return err
	}
	m.finish(resp.Data.Items, true, nil)
	logger.Info().Msgf("fetched cart with items=%d", len(resp.Data.Items))
	return nil
}

// Add requires authentication. When the buyer is not logged in the gate
// persists the resume path and no request is issued; the server merges the
// quantity when the product already has a line.
func (m *Manager) Add(c context.Context, product response.Product) error {
	c, span := tracer.Start(c, "Manager Add")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Add").
		Str(log.KeyProductID, product.ID.String()).
		Logger()

	if err := m.gate.Require(c); err != nil {
		return err
	}

	reqBody := request.AddItem{ProductId: product.ID, Quantity: 1}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating add request: %v with error=%w", err, inErrors.ErrValidation)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	if err := m.begin(); err != nil {
		return err
	}

	resp := response.Cart{}
	if err := m.client.Post(c, "/cart/add", reqBody, &resp); err != nil {
		m.finish(nil, false, err)
		err = fmt.Errorf("failed adding to cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		m.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeFor(err),
			Message: "Failed to add to cart",
		})
		return err
	}
	m.finish(resp.Data.Items, true, nil)
	logger.Info().Msg("added product to cart")
	m.bus.Publish(c, notice.Notice{
		Level:   notice.LevelSuccess,
		Code:    notice.CodeCartUpdated,
		Message: "Added to cart",
	})
	return nil
}

// Remove deletes the product's line. Removing a product that has no line is
// a no-op and issues no request.
func (m *Manager) Remove(c context.Context, productID uuid.UUID) error {
	c, span := tracer.Start(c, "Manager Remove")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Remove").
		Str(log.KeyProductID, productID.String()).
		Logger()

	if err := m.gate.Require(c); err != nil {
		return err
	}
	if !m.Contains(productID) {
		logger.Debug().Msg("product not in cart, nothing to remove")
		return nil
	}

	if err := m.begin(); err != nil {
		return err
	}

	resp := response.Cart{}
	if err := m.client.Delete(c, "/cart/remove/"+productID.String(), &resp); err != nil {
		m.finish(nil, false, err)
		err = fmt.Errorf("failed removing from cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		m.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeFor(err),
			Message: "Failed to remove item",
		})
		return err
	}
	m.finish(resp.Data.Items, true, nil)
	logger.Info().Msg("removed product from cart")
	m.bus.Publish(c, notice.Notice{
		Level:   notice.LevelSuccess,
		Code:    notice.CodeCartUpdated,
		Message: "Removed from cart",
	})
	return nil
}

// SetQuantity updates a line's quantity; zero or less removes the line.
func (m *Manager) SetQuantity(c context.Context, productID uuid.UUID, quantity int32) error {
	c, span := tracer.Start(c, "Manager SetQuantity")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager SetQuantity").
		Str(log.KeyProductID, productID.String()).
		Int32("quantity", quantity).
		Logger()

	if quantity <= 0 {
		return m.Remove(c, productID)
	}

	if err := m.gate.Require(c); err != nil {
		return err
	}

	reqBody := request.UpdateItem{ProductId: productID, Quantity: quantity}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating update request: %v with error=%w", err, inErrors.ErrValidation)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	if err := m.begin(); err != nil {
		return err
	}

	resp := response.Cart{}
	if err := m.client.Put(c, "/cart/update", reqBody, &resp); err != nil {
		m.finish(nil, false, err)
		err = fmt.Errorf("failed updating quantity with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		m.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeFor(err),
			Message: "Failed to update quantity",
		})
		return err
	}
	m.finish(resp.Data.Items, true, nil)
	logger.Info().Msg("updated quantity")
	return nil
}

func (m *Manager) Increment(c context.Context, productID uuid.UUID) error {
	quantity := m.Quantity(productID)
	if quantity == 0 {
		return nil
	}
	return m.SetQuantity(c, productID, quantity+1)
}

func (m *Manager) Decrement(c context.Context, productID uuid.UUID) error {
	quantity := m.Quantity(productID)
	if quantity == 0 {
		return nil
	}
	if quantity == 1 {
		return m.Remove(c, productID)
	}
	return m.SetQuantity(c, productID, quantity-1)
}

// Clear empties the server-held cart, called after a settled order.
func (m *Manager) Clear(c context.Context) error {
	c, span := tracer.Start(c, "Manager Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Clear").
		Logger()

	if err := m.gate.Require(c); err != nil {
		return err
	}
	if err := m.begin(); err != nil {
		return err
	}

	if err := m.client.Delete(c, "/cart/clear", nil); err != nil {
		m.finish(nil, false, err)
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		m.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeFor(err),
			Message: "Failed to clear cart",
		})
		return err
	}
	m.finish(nil, true, nil)
	logger.Info().Msg("cleared cart")
	return nil
}

// Total is recomputed from the current item list on every call.
func (m *Manager) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, item := range m.items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt32(item.Quantity)))
	}
	return total
}

func (m *Manager) Count() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := int32(0)
	for _, item := range m.items {
		count += item.Quantity
	}
	return count
}

func (m *Manager) Contains(productID uuid.UUID) bool {
	return m.Quantity(productID) > 0
}

func (m *Manager) Quantity(productID uuid.UUID) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.Product.ID == productID {
			return item.Quantity
		}
	}
	return 0
}

func (m *Manager) Items() []response.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]response.CartItem, len(m.items))
	copy(items, m.items)
	return items
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close marks the manager torn down. Responses settling afterwards are
// discarded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
}

package wishlist

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
	cartRes "github.com/shopaura/storefront/cart/pkg/response"
	inErrors "github.com/shopaura/storefront/internal/errors"
	"github.com/shopaura/storefront/internal/httpclient"
	"github.com/shopaura/storefront/internal/log"
	"github.com/shopaura/storefront/internal/notice"
	"github.com/shopaura/storefront/wishlist/pkg/request"
	"github.com/shopaura/storefront/wishlist/pkg/response"
)

var tracer = otel.Tracer("storefront/wishlist")

// ErrToggleInFlight means another toggle has not settled yet. The guard is
// global, not per product: unrelated toggles are serialized on purpose to
// avoid request storms against the rate limiter.
var ErrToggleInFlight = errors.New("wishlist toggle already in progress")

// Guard owns the local wishlist view and the single-flight toggle.
type Guard struct {
	client *httpclient.Client
	gate   *auth.Gate
	bus    *notice.Bus

	inFlight atomic.Bool

	mu    sync.Mutex
	items []cartRes.Product
}

func NewGuard(client *httpclient.Client, gate *auth.Gate, bus *notice.Bus) *Guard {
	return &Guard{client: client, gate: gate, bus: bus}
}

// Sync pulls the authoritative set, replacing the local view wholesale.
func (g *Guard) Sync(c context.Context) error {
	c, span := tracer.Start(c, "Guard Sync")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Guard Sync").
		Logger()

	resp := response.Wishlist{}
	if err := g.client.Get(c, "/wishlist", &resp); err != nil {
		err = fmt.Errorf("failed syncing wishlist with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	g.replace(resp.Items)
	logger.Info().Msgf("synced wishlist with items=%d", len(resp.Items))
	return nil
}

// Toggle flips the product's membership server-side and replaces the local
// set with the returned one. It reports whether the product ended up added.
func (g *Guard) Toggle(c context.Context, product cartRes.Product) (bool, error) {
	c, span := tracer.Start(c, "Guard Toggle")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Guard Toggle").
		Str(log.KeyProductID, product.ID.String()).
		Logger()

	if err := g.gate.Require(c); err != nil {
		return false, err
	}

	if !g.inFlight.CompareAndSwap(false, true) {
		logger.Warn().Msg("rejected toggle while another is outstanding")
		return false, ErrToggleInFlight
	}
	defer g.inFlight.Store(false)

	reqBody := request.Toggle{ProductId: product.ID}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating toggle request: %v with error=%w", err, inErrors.ErrValidation)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return false, err
	}

	resp := response.Toggle{}
	if err := g.client.Post(c, "/wishlist/toggle", reqBody, &resp); err != nil {
		err = fmt.Errorf("failed toggling wishlist with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		if errors.Is(err, inErrors.ErrRateLimited) {
			g.bus.Publish(c, notice.Notice{
				Level:   notice.LevelError,
				Code:    notice.CodeRateLimited,
				Message: "Too many requests. Please wait a moment.",
			})
		} else {
			g.bus.Publish(c, notice.Notice{
				Level:   notice.LevelError,
				Code:    notice.CodeFor(err),
				Message: "Failed to update wishlist",
			})
		}
		return false, err
	}

	g.replace(resp.Items)
	message := "Removed from wishlist"
	if resp.IsAdded {
		message = "Added to wishlist!"
	}
	logger.Info().Msgf("toggled wishlist isAdded=%t", resp.IsAdded)
	g.bus.Publish(c, notice.Notice{
		Level:   notice.LevelSuccess,
		Code:    notice.CodeWishlistUpdated,
		Message: message,
	})
	return resp.IsAdded, nil
}

// Add toggles only when the product is not already a member, avoiding a
// redundant round-trip.
func (g *Guard) Add(c context.Context, product cartRes.Product) error {
	if err := g.gate.Require(c); err != nil {
		return err
	}
	if g.Contains(product.ID) {
		return nil
	}
	_, err := g.Toggle(c, product)
	return err
}

// Remove toggles only when the product is currently a member.
func (g *Guard) Remove(c context.Context, productID uuid.UUID) error {
	if err := g.gate.Require(c); err != nil {
		return err
	}
	product, ok := g.find(productID)
	if !ok {
		return nil
	}
	_, err := g.Toggle(c, product)
	return err
}

func (g *Guard) Clear(c context.Context) error {
	c, span := tracer.Start(c, "Guard Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Guard Clear").
		Logger()

	if err := g.gate.Require(c); err != nil {
		return err
	}
	if err := g.client.Delete(c, "/wishlist/clear", nil); err != nil {
		err = fmt.Errorf("failed clearing wishlist with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		g.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeFor(err),
			Message: "Failed to clear wishlist",
		})
		return err
	}
	g.replace(nil)
	logger.Info().Msg("cleared wishlist")
	return nil
}

func (g *Guard) Contains(productID uuid.UUID) bool {
	_, ok := g.find(productID)
	return ok
}

func (g *Guard) Items() []cartRes.Product {
	g.mu.Lock()
	defer g.mu.Unlock()
	items := make([]cartRes.Product, len(g.items))
	copy(items, g.items)
	return items
}

func (g *Guard) replace(items []cartRes.Product) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.items = items
}

func (g *Guard) find(productID uuid.UUID) (cartRes.Product, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, item := range g.items {
		if item.ID == productID {
			return item, true
		}
	}
	return cartRes.Product{}, false
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	inErrors "github.com/shopaura/storefront/internal/errors"
	"github.com/shopaura/storefront/internal/log"
	"github.com/shopaura/storefront/internal/notice"
)

var tracer = otel.Tracer("storefront/auth")

// ErrWrongPortal means the session belongs to a seller or admin account that
// must use the other portal.
var ErrWrongPortal = errors.New("account cannot access the buyer portal")

// Gate guards every mutating flow. An unauthenticated attempt persists the
// current location in a single last-write-wins slot, publishes a login
// notice, and returns ErrAuthRequired without touching the network. The
// consuming flow reads the slot back exactly once after login.
type Gate struct {
	session *Session
	bus     *notice.Bus

	mu         sync.Mutex
	location   string
	resumePath string
}

func NewGate(session *Session, bus *notice.Bus) *Gate {
	return &Gate{session: session, bus: bus}
}

// SetLocation records where the buyer currently is, so Require knows what to
// resume after login.
func (g *Gate) SetLocation(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.location = path
}

func (g *Gate) Location() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.location
}

func (g *Gate) Require(c context.Context) error {
	c, span := tracer.Start(c, "Gate Require")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Gate Require").
		Logger()

	if !g.session.Authenticated() {
		g.mu.Lock()
		g.resumePath = g.location
		resume := g.resumePath
		g.mu.Unlock()

		err := fmt.Errorf("blocked unauthenticated action with error=%w", inErrors.ErrAuthRequired)
		inErrors.HandleError(err, span)
		logger.Warn().Str(log.KeyResumePath, resume).Msg(err.Error())
		g.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeAuthRequired,
			Message: "Please login to continue",
		})
		return err
	}

	if role := g.session.User().Role; role != "" && role != RoleBuyer {
		err := fmt.Errorf("blocked role=%s with error=%w", role, ErrWrongPortal)
		inErrors.HandleError(err, span)
		logger.Warn().Msg(err.Error())
		g.bus.Publish(c, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeAuthRequired,
			Message: "Sellers and admins must use the admin panel",
		})
		return err
	}

	return nil
}

// TakeResumePath clears and returns the saved destination. The second caller
// gets false and should fall back to the default destination.
func (g *Gate) TakeResumePath() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resumePath == "" {
		return "", false
	}
	path := g.resumePath
	g.resumePath = ""
	return path, true
}

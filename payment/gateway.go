package payment

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Checkout is everything the hosted widget needs: the merchant key, the
// gateway's own order descriptor, and the buyer contact prefill.
type Checkout struct {
	KeyID          string
	Amount         int64
	Currency       string
	GatewayOrderID string
	Name           string
	Description    string
	Prefill        Prefill
	ThemeColor     string
}

type Prefill struct {
	Name    string
	Email   string
	Contact string
}

// Callback is the signed result the gateway hands back after the buyer
// completes the hosted flow.
type Callback struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Hooks wires the widget outcomes back into the orchestrator. Open invokes
// exactly one of them before returning.
type Hooks struct {
	OnSuccess func(c context.Context, cb Callback)
	OnDismiss func(c context.Context)
}

// Gateway abstracts the external processor's client integration. Load is
// called lazily and cached once it succeeds; a load failure aborts before
// any widget opens and is retried on the next attempt.
type Gateway interface {
	Load(c context.Context) error
	Open(c context.Context, co Checkout, hooks Hooks) error
}

// TerminalGateway drives the hand-off interactively: it prints the hosted
// checkout details and reads the signed callback from the terminal, or an
// empty line when the buyer walked away.
type TerminalGateway struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalGateway(in io.Reader, out io.Writer) *TerminalGateway {
	return &TerminalGateway{in: bufio.NewReader(in), out: out}
}

func (g *TerminalGateway) Load(c context.Context) error {
	return nil
}

func (g *TerminalGateway) Open(c context.Context, co Checkout, hooks Hooks) error {
	fmt.Fprintf(g.out, "%s — %s\n", co.Name, co.Description)
	fmt.Fprintf(g.out, "Pay %d %s (gateway order %s)\n", co.Amount, co.Currency, co.GatewayOrderID)
	fmt.Fprintf(g.out, "Enter <paymentId> <signature>, or an empty line to cancel: ")

	line, err := g.in.ReadString('\n')
	if err != nil && line == "" {
		hooks.OnDismiss(c)
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		hooks.OnDismiss(c)
		return nil
	}
	hooks.OnSuccess(c, Callback{
		GatewayOrderID:   co.GatewayOrderID,
		GatewayPaymentID: fields[0],
		Signature:        fields[1],
	})
	return nil
}

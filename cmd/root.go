package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shopaura/storefront/auth"
	"github.com/shopaura/storefront/cart"
	cartRes "github.com/shopaura/storefront/cart/pkg/response"
	"github.com/shopaura/storefront/checkout"
	"github.com/shopaura/storefront/internal/config"
	"github.com/shopaura/storefront/internal/httpclient"
	"github.com/shopaura/storefront/internal/log"
	"github.com/shopaura/storefront/internal/notice"
	"github.com/shopaura/storefront/internal/otel"
	"github.com/shopaura/storefront/payment"
	"github.com/shopaura/storefront/wishlist"
)

type storefront struct {
	session      *auth.Session
	gate         *auth.Gate
	bus          *notice.Bus
	cart         *cart.Manager
	wishlist     *wishlist.Guard
	calculator   *checkout.Calculator
	orchestrator *payment.Orchestrator
}

func Start() {
	logger := log.InitLogger("/var/log/storefront.log", os.Getenv("STOREFRONT_ENV")).
		With().
		Str(log.KeyAppName, "storefront").
		Str(log.KeyTag, "main Start").
		Logger()

	logger.Info().Msg("adding listener for SIGINT and SIGTERM")
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info().Msg("added listener for SIGINT and SIGTERM")

	c = logger.WithContext(c)

	cfg := config.InitConfig(c, "storefront")
	if cfg.Otel.Enabled {
		provider, err := otel.InitTracerProvider(c, cfg.Otel.Host, cfg.Otel.Port)
		if err != nil {
			logger.Fatal().Err(err).Msg(err.Error())
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Warn().Msgf("failed shutting down tracer provider with error=%s", err.Error())
			}
		}()
	}

	session := auth.NewSession()
	if cfg.Api.SessionToken != "" {
		session.Login(cfg.Api.SessionToken, auth.User{Role: auth.RoleBuyer})
	}
	bus := notice.NewBus(32)
	gate := auth.NewGate(session, bus)
	client := httpclient.New(cfg.Api, session.Token, func(hc context.Context) {
		session.Clear()
		bus.Publish(hc, notice.Notice{
			Level:   notice.LevelError,
			Code:    notice.CodeSessionExpired,
			Message: "Session expired. Please login again.",
		})
	})
	cartMgr := cart.NewManager(client, gate, bus)
	sf := &storefront{
		session:      session,
		gate:         gate,
		bus:          bus,
		cart:         cartMgr,
		wishlist:     wishlist.NewGuard(client, gate, bus),
		calculator:   checkout.NewCalculator(client, cartMgr, bus, cfg.Checkout),
		orchestrator: payment.NewOrchestrator(client, cartMgr, gate, bus, payment.NewTerminalGateway(os.Stdin, os.Stdout), cfg.Gateway),
	}

	rootCmd := &cobra.Command{Use: "storefront"}
	rootCmd.AddCommand(
		cartCommand(sf),
		wishlistCommand(sf),
		checkoutCommand(sf),
		payCommand(sf),
	)
	if err := rootCmd.ExecuteContext(c); err != nil {
		sf.drainNotices()
		logger.Fatal().Err(err).Msgf("error when executing command=%s", err.Error())
	}
	sf.drainNotices()
}

func (sf *storefront) drainNotices() {
	for {
		select {
		case n := <-sf.bus.C():
			fmt.Printf("[%s] %s\n", n.Level, n.Message)
		default:
			return
		}
	}
}

func cartCommand(sf *storefront) *cobra.Command {
	cartCmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and mutate the server-held cart",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch and print the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sf.cart.Fetch(cmd.Context()); err != nil {
				return err
			}
			for _, item := range sf.cart.Items() {
				fmt.Printf("%s  x%d  @%s\n", item.Product.Name, item.Quantity, item.Price.String())
			}
			fmt.Printf("items=%d total=%s\n", sf.cart.Count(), sf.cart.Total().String())
			return nil
		},
	}

	var (
		productID string
		name      string
		price     string
		quantity  int32
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add one unit of a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(productID)
			if err != nil {
				return fmt.Errorf("invalid product id with error=%w", err)
			}
			unitPrice, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price with error=%w", err)
			}
			return sf.cart.Add(cmd.Context(), cartRes.Product{ID: id, Name: name, Price: unitPrice})
		},
	}
	addCmd.Flags().StringVar(&productID, "product", "", "product id")
	addCmd.Flags().StringVar(&name, "name", "", "product name")
	addCmd.Flags().StringVar(&price, "price", "0", "unit price")

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a product's line",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(productID)
			if err != nil {
				return fmt.Errorf("invalid product id with error=%w", err)
			}
			return sf.cart.Remove(cmd.Context(), id)
		},
	}
	removeCmd.Flags().StringVar(&productID, "product", "", "product id")

	setQtyCmd := &cobra.Command{
		Use:   "set-qty",
		Short: "Set a line's quantity, zero removes it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(productID)
			if err != nil {
				return fmt.Errorf("invalid product id with error=%w", err)
			}
			return sf.cart.SetQuantity(cmd.Context(), id, quantity)
		},
	}
	setQtyCmd.Flags().StringVar(&productID, "product", "", "product id")
	setQtyCmd.Flags().Int32Var(&quantity, "quantity", 1, "quantity")

	cartCmd.AddCommand(listCmd, addCmd, removeCmd, setQtyCmd)
	return cartCmd
}

func wishlistCommand(sf *storefront) *cobra.Command {
	wishlistCmd := &cobra.Command{
		Use:   "wishlist",
		Short: "Inspect and toggle wishlist membership",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Sync and print the wishlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sf.wishlist.Sync(cmd.Context()); err != nil {
				return err
			}
			for _, item := range sf.wishlist.Items() {
				fmt.Printf("%s  @%s\n", item.Name, item.Price.String())
			}
			return nil
		},
	}

	var productID string
	toggleCmd := &cobra.Command{
		Use:   "toggle",
		Short: "Flip a product's wishlist membership",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(productID)
			if err != nil {
				return fmt.Errorf("invalid product id with error=%w", err)
			}
			added, err := sf.wishlist.Toggle(cmd.Context(), cartRes.Product{ID: id})
			if err != nil {
				return err
			}
			fmt.Printf("isAdded=%t\n", added)
			return nil
		},
	}
	toggleCmd.Flags().StringVar(&productID, "product", "", "product id")

	wishlistCmd.AddCommand(listCmd, toggleCmd)
	return wishlistCmd
}

func checkoutCommand(sf *storefront) *cobra.Command {
	var couponCode string
	checkoutCmd := &cobra.Command{
		Use:   "checkout",
		Short: "Print the order summary for the current cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cmd.Context()
			if err := sf.cart.Fetch(c); err != nil {
				return err
			}
			if couponCode != "" {
				if _, err := sf.calculator.ApplyCoupon(c, couponCode); err != nil {
					return err
				}
			}
			subtotal := sf.cart.Total()
			fmt.Printf("subtotal=%s shipping=%s discount=%s total=%s\n",
				subtotal.String(),
				sf.calculator.Shipping(subtotal).String(),
				sf.calculator.Discount().String(),
				sf.calculator.Total().String(),
			)
			return nil
		},
	}
	checkoutCmd.Flags().StringVar(&couponCode, "coupon", "", "coupon code")
	return checkoutCmd
}

func payCommand(sf *storefront) *cobra.Command {
	var (
		addressID  string
		method     string
		couponCode string
	)
	payCmd := &cobra.Command{
		Use:   "pay",
		Short: "Place and settle an order from the current cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cmd.Context()
			if err := sf.cart.Fetch(c); err != nil {
				return err
			}
			if couponCode != "" {
				if _, err := sf.calculator.ApplyCoupon(c, couponCode); err != nil {
					return err
				}
			}
			address, err := uuid.Parse(addressID)
			if err != nil {
				return fmt.Errorf("invalid address id with error=%w", err)
			}
			session, err := sf.calculator.BuildSession(c, address)
			if err != nil {
				return err
			}
			result, err := sf.orchestrator.Submit(c, session, method)
			if err != nil {
				return err
			}
			fmt.Printf("order=%s number=%s paymentCaptured=%t\n",
				result.OrderID.String(), result.OrderNumber, result.PaymentCaptured)
			return nil
		},
	}
	payCmd.Flags().StringVar(&addressID, "address", "", "delivery address id")
	payCmd.Flags().StringVar(&method, "method", payment.MethodOnline, "payment method (cod or online)")
	payCmd.Flags().StringVar(&couponCode, "coupon", "", "coupon code")
	return payCmd
}

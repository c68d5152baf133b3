package response

import (
	"github.com/google/uuid"
)

const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusProcessing     = "processing"
	OrderStatusShipped        = "shipped"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
)

type Order struct {
	ID            uuid.UUID `json:"_id"`
	OrderNumber   string    `json:"orderNumber"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"paymentMethod"`
	PaymentStatus string    `json:"paymentStatus"`
	User          struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
	ShippingAddress struct {
		Phone string `json:"phone"`
	} `json:"shippingAddress"`
}

// GatewayOrder is the external processor's order descriptor. Amount is in
// minor currency units, the way the gateway expects it.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type CreateOrder struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Order        Order         `json:"order"`
	GatewayOrder *GatewayOrder `json:"gatewayOrder,omitempty"`
}

type Verify struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	PaymentStatus string `json:"paymentStatus"`
}

type Status struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	OrderId       uuid.UUID `json:"orderId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
}

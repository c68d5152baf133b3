package request

import (
	"github.com/google/uuid"
)

type CreateOrder struct {
	AddressId     uuid.UUID `validate:"required" json:"addressId"`
	PaymentMethod string    `validate:"required,oneof=cod online" json:"paymentMethod"`
	CouponCode    string    `json:"couponCode,omitempty"`
}

// VerifyPayment forwards the signed gateway callback to the server together
// with the internal order id captured at creation time.
type VerifyPayment struct {
	GatewayOrderId   string    `validate:"required" json:"gatewayOrderId"`
	GatewayPaymentId string    `validate:"required" json:"gatewayPaymentId"`
	Signature        string    `validate:"required" json:"signature"`
	OrderId          uuid.UUID `validate:"required" json:"orderId"`
}

type PaymentFailure struct {
	OrderId uuid.UUID `json:"orderId"`
	Error   string    `json:"error"`
}

package response

import (
	"github.com/shopspring/decimal"
)

type Coupon struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

type ValidateCoupon struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Coupon   Coupon          `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
}

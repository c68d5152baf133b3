package request

import (
	"github.com/shopspring/decimal"
)

type ValidateCoupon struct {
	Code       string          `validate:"required" json:"code"`
	ItemsPrice decimal.Decimal `json:"itemsPrice"`
}

package request

import (
	"github.com/google/uuid"
)

type AddItem struct {
	ProductId uuid.UUID `validate:"required" json:"productId"`
	Quantity  int32     `validate:"required,gte=1" json:"quantity"`
}

type UpdateItem struct {
	ProductId uuid.UUID `validate:"required" json:"productId"`
	Quantity  int32     `validate:"required,gte=1" json:"quantity"`
}

package request

import (
	"github.com/google/uuid"
)

type Toggle struct {
	ProductId uuid.UUID `validate:"required" json:"productId"`
}

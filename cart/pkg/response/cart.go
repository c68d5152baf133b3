package response

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID        uuid.UUID       `json:"_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Thumbnail string          `json:"image"`
}

// CartItem is one line of the server-held cart. Price is the unit price
// snapshot taken when the line was created, not the live product price.
type CartItem struct {
	Product  Product         `json:"product"`
	Price    decimal.Decimal `json:"price"`
	Quantity int32           `json:"quantity"`
}

type Cart struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Items []CartItem `json:"items"`
	} `json:"data"`
}

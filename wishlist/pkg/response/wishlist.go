package response

import (
	cartRes "github.com/shopaura/storefront/cart/pkg/response"
)

// Wishlist membership is pure set semantics, a product reference per entry.
type Toggle struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	IsAdded bool              `json:"isAdded"`
	Items   []cartRes.Product `json:"wishlistItems"`
}

type Wishlist struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Items   []cartRes.Product `json:"wishlistItems"`
}

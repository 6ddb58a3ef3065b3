package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartEntry is one record saved to the shopping list
type CartEntry struct {
	ID      string      `json:"id"`
	Record  PriceRecord `json:"record"`
	AddedAt time.Time   `json:"addedAt"`
}

// CartCategoryGroup holds the entries of one category within a store
type CartCategoryGroup struct {
	Category string      `json:"category"`
	Entries  []CartEntry `json:"entries"`
}

// CartStoreGroup holds the entries bought at one store
type CartStoreGroup struct {
	Store      string              `json:"store"`
	Categories []CartCategoryGroup `json:"categories"`
	Subtotal   decimal.Decimal     `json:"subtotal"`
}

// CartSummary is the budget-aware view of the shopping list
type CartSummary struct {
	Stores     []CartStoreGroup `json:"stores"`
	ItemCount  int              `json:"itemCount"`
	Total      decimal.Decimal  `json:"total"`
	Savings    decimal.Decimal  `json:"savings"`
	Budget     decimal.Decimal  `json:"budget"`
	Remaining  decimal.Decimal  `json:"remaining"`
	OverBudget bool             `json:"overBudget"`
}

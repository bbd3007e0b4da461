package services

import (
	"testing"

	"github.com/SonthatQ/qr-restaurant/internal/model"

	"github.com/stretchr/testify/assert"
)

func testMenu() map[int64]*model.MenuItem {
	return map[int64]*model.MenuItem{
		1: {MenuItemID: 1, Name: "Americano", Price: 60, IsAvailable: true},
		2: {MenuItemID: 2, Name: "Latte", Price: 75, IsAvailable: true},
		3: {MenuItemID: 3, Name: "Pad Thai", Price: 99, IsAvailable: false},
	}
}

func TestPriceCart(t *testing.T) {
	items, total := priceCart(testMenu(), []model.CartLine{
		{MenuItemID: 1, Qty: 2},
		{MenuItemID: 2, Qty: 1, Note: " no sugar "},
	})

	assert.Equal(t, 195.0, total)
	assert.Len(t, items, 2)
	assert.Equal(t, 120.0, items[0].LineTotal)
	assert.Equal(t, 60.0, items[0].UnitPrice)
	assert.Equal(t, "no sugar", items[1].Note)
}

func TestPriceCart_SkipsInvalidLines(t *testing.T) {
	items, total := priceCart(testMenu(), []model.CartLine{
		{MenuItemID: 1, Qty: 0},   // zero qty
		{MenuItemID: 3, Qty: 2},   // unavailable
		{MenuItemID: 999, Qty: 1}, // unknown item
		{MenuItemID: 2, Qty: -1},  // negative qty
	})

	assert.Empty(t, items)
	assert.Equal(t, 0.0, total)
}

func TestPriceCart_ServerSidePricing(t *testing.T) {
	// the cart line carries no price; the menu decides
	items, total := priceCart(testMenu(), []model.CartLine{{MenuItemID: 1, Qty: 1}})
	assert.Equal(t, 60.0, total)
	assert.Equal(t, 60.0, items[0].UnitPrice)
}

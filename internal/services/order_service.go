package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SonthatQ/qr-restaurant/internal/model"
	"github.com/SonthatQ/qr-restaurant/internal/repository"

	"github.com/jackc/pgx/v5"
)

var ErrEmptyCart = errors.New("cart has no valid items")

type OrderService struct {
	OrderRepo *repository.OrderRepository
	MenuRepo  *repository.MenuRepository
}

func NewOrderService(or *repository.OrderRepository, mr *repository.MenuRepository) *OrderService {
	return &OrderService{OrderRepo: or, MenuRepo: mr}
}

// makeInvoiceRef builds a unique, human-scannable invoice reference:
// T<token prefix>-<unix ts>-<random hex>, uppercased.
func makeInvoiceRef(tableToken string, now time.Time) string {
	prefix := tableToken
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return strings.ToUpper(fmt.Sprintf("T%s-%d-%s", prefix, now.Unix(), hex.EncodeToString(b)))
}

// priceCart prices cart lines against the menu. Lines with zero quantity or
// unavailable/unknown items are skipped; prices always come from the menu,
// never from the client.
func priceCart(menu map[int64]*model.MenuItem, lines []model.CartLine) ([]model.OrderItem, float64) {
	var items []model.OrderItem
	var total float64
	for _, line := range lines {
		if line.Qty <= 0 {
			continue
		}
		item := menu[line.MenuItemID]
		if item == nil || !item.IsAvailable {
			continue
		}

		lineTotal := item.Price * float64(line.Qty)
		total += lineTotal
		items = append(items, model.OrderItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Qty:        line.Qty,
			UnitPrice:  item.Price,
			LineTotal:  lineTotal,
			Note:       strings.TrimSpace(line.Note),
		})
	}
	return items, total
}

// Create validates the cart against the available menu, prices each line
// server-side, and persists the order with its items. An order that prices
// to zero is rejected.
func (s *OrderService) Create(ctx context.Context, table *model.Table, lines []model.CartLine, note string) (*model.Order, []model.OrderItem, error) {
	if len(lines) == 0 {
		return nil, nil, ErrEmptyCart
	}

	menu := make(map[int64]*model.MenuItem, len(lines))
	for _, line := range lines {
		if _, seen := menu[line.MenuItemID]; seen {
			continue
		}
		item, err := s.MenuRepo.GetByID(ctx, line.MenuItemID)
		if err != nil {
			return nil, nil, err
		}
		menu[line.MenuItemID] = item
	}

	items, total := priceCart(menu, lines)
	if total <= 0 {
		return nil, nil, ErrEmptyCart
	}

	order := &model.Order{
		TableID:     table.TableID,
		Note:        strings.TrimSpace(note),
		Status:      "created",
		TotalAmount: total,
		Currency:    "THB",
		InvoiceRef:  makeInvoiceRef(table.Token, time.Now().UTC()),
	}

	created, err := s.OrderRepo.Create(ctx, order, items)
	if err != nil {
		return nil, nil, err
	}
	return created, items, nil
}

// AllowedKitchenStatuses are the staff-driven lifecycle states.
var AllowedKitchenStatuses = map[string]bool{
	"new":       true,
	"cooking":   true,
	"served":    true,
	"cancelled": true,
}

// UpdateKitchenStatus applies a staff status change and stamps the matching
// timestamp.
func (s *OrderService) UpdateKitchenStatus(ctx context.Context, orderID int64, status string) error {
	if !AllowedKitchenStatuses[status] {
		return fmt.Errorf("invalid status %q", status)
	}
	err := s.OrderRepo.UpdateKitchenStatus(ctx, orderID, status, time.Now().UTC())
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	return err
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SonthatQ/qr-restaurant/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	DB *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{DB: db}
}

const orderColumns = `orderid, tableid, note, status, orderstatus, totalamount, currency, invoiceref,
       createdat, acceptedat, servedat, cancelledat`

// qualified variant for queries that join payments (both tables have a
// status column)
const orderColumnsQ = `o.orderid, o.tableid, o.note, o.status, o.orderstatus, o.totalamount, o.currency, o.invoiceref,
       o.createdat, o.acceptedat, o.servedat, o.cancelledat`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.OrderID, &o.TableID, &o.Note, &o.Status, &o.OrderStatus,
		&o.TotalAmount, &o.Currency, &o.InvoiceRef,
		&o.CreatedAt, &o.AcceptedAt, &o.ServedAt, &o.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// Create inserts the order and its items in one transaction and returns the
// stored order.
func (r *OrderRepository) Create(ctx context.Context, o *model.Order, items []model.OrderItem) (*model.Order, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	q := `
		INSERT INTO orders (tableid, note, status, totalamount, currency, invoiceref, createdat)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING ` + orderColumns

	created, err := scanOrder(tx.QueryRow(ctx, q, o.TableID, o.Note, o.Status, o.TotalAmount, o.Currency, o.InvoiceRef))
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (orderid, menuitemid, qty, unitprice, linetotal, note)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, created.OrderID, it.MenuItemID, it.Qty, it.UnitPrice, it.LineTotal, it.Note)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID int64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE orderid=$1`
	return scanOrder(r.DB.QueryRow(ctx, q, orderID))
}

func (r *OrderRepository) GetItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	q := `
		SELECT oi.orderitemid, oi.orderid, oi.menuitemid, COALESCE(mi.name, ''),
		       oi.qty, oi.unitprice, oi.linetotal, oi.note
		FROM order_items oi
		LEFT JOIN menu_items mi ON mi.menuitemid = oi.menuitemid
		WHERE oi.orderid=$1
		ORDER BY oi.orderitemid
	`
	rows, err := r.DB.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.OrderItemID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Qty, &it.UnitPrice, &it.LineTotal, &it.Note); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetTableToken resolves the table token for an order, used to address the
// "table:<token>" broadcast group.
func (r *OrderRepository) GetTableToken(ctx context.Context, orderID int64) (string, error) {
	var token string
	q := `
		SELECT t.token
		FROM orders o
		JOIN tables t ON t.tableid = o.tableid
		WHERE o.orderid=$1
	`
	err := r.DB.QueryRow(ctx, q, orderID).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// UpdateKitchenStatus sets the staff-side lifecycle status and stamps the
// matching timestamp column.
func (r *OrderRepository) UpdateKitchenStatus(ctx context.Context, orderID int64, status string, at time.Time) error {
	var stampCol string
	switch status {
	case "cooking":
		stampCol = "acceptedat"
	case "served":
		stampCol = "servedat"
	case "cancelled":
		stampCol = "cancelledat"
	}

	q := `UPDATE orders SET orderstatus=$2 WHERE orderid=$1`
	args := []interface{}{orderID, status}
	if stampCol != "" {
		q = `UPDATE orders SET orderstatus=$2, ` + stampCol + `=$3 WHERE orderid=$1`
		args = append(args, at)
	}

	ct, err := r.DB.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListRecent returns the newest orders with their payment status for the
// staff dashboard; "unpaid" when no payment row exists.
func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]model.Order, map[int64]string, error) {
	q := `
		SELECT ` + orderColumnsQ + `, COALESCE(p.status, 'unpaid')
		FROM orders o
		LEFT JOIN payments p ON p.orderid = o.orderid
		ORDER BY o.orderid DESC
		LIMIT $1
	`
	rows, err := r.DB.Query(ctx, q, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []model.Order
	payStatus := make(map[int64]string)
	for rows.Next() {
		var o model.Order
		var ps string
		if err := rows.Scan(
			&o.OrderID, &o.TableID, &o.Note, &o.Status, &o.OrderStatus,
			&o.TotalAmount, &o.Currency, &o.InvoiceRef,
			&o.CreatedAt, &o.AcceptedAt, &o.ServedAt, &o.CancelledAt,
			&ps,
		); err != nil {
			return nil, nil, err
		}
		out = append(out, o)
		payStatus[o.OrderID] = ps
	}
	return out, payStatus, rows.Err()
}

// ReportPaid lists paid orders created inside [from, to] and their sum.
func (r *OrderRepository) ReportPaid(ctx context.Context, from, to time.Time) ([]model.Order, float64, error) {
	q := `
		SELECT ` + orderColumnsQ + `
		FROM orders o
		JOIN payments p ON p.orderid = o.orderid
		WHERE p.status='paid' AND o.createdat >= $1 AND o.createdat <= $2
		ORDER BY o.orderid DESC
	`
	rows, err := r.DB.Query(ctx, q, from, to)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Order
	var total float64
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(
			&o.OrderID, &o.TableID, &o.Note, &o.Status, &o.OrderStatus,
			&o.TotalAmount, &o.Currency, &o.InvoiceRef,
			&o.CreatedAt, &o.AcceptedAt, &o.ServedAt, &o.CancelledAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
		total += o.TotalAmount
	}
	return out, total, rows.Err()
}

package repository

import (
	"context"
	"errors"

	"github.com/SonthatQ/qr-restaurant/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MenuRepository struct {
	DB *pgxpool.Pool
}

func NewMenuRepository(db *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{DB: db}
}

func (r *MenuRepository) ListAvailable(ctx context.Context) ([]model.MenuItem, error) {
	q := `
		SELECT menuitemid, name, description, category, price, imageurl, isavailable
		FROM menu_items
		WHERE isavailable=TRUE
		ORDER BY category, name
	`
	rows, err := r.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MenuItem
	for rows.Next() {
		var m model.MenuItem
		if err := rows.Scan(&m.MenuItemID, &m.Name, &m.Description, &m.Category, &m.Price, &m.ImageURL, &m.IsAvailable); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MenuRepository) GetByID(ctx context.Context, id int64) (*model.MenuItem, error) {
	q := `
		SELECT menuitemid, name, description, category, price, imageurl, isavailable
		FROM menu_items
		WHERE menuitemid=$1
	`
	var m model.MenuItem
	err := r.DB.QueryRow(ctx, q, id).Scan(&m.MenuItemID, &m.Name, &m.Description, &m.Category, &m.Price, &m.ImageURL, &m.IsAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MenuRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM menu_items`).Scan(&n)
	return n, err
}

func (r *MenuRepository) Insert(ctx context.Context, m model.MenuItem) (int64, error) {
	var id int64
	q := `
		INSERT INTO menu_items (name, description, category, price, imageurl, isavailable)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING menuitemid
	`
	err := r.DB.QueryRow(ctx, q, m.Name, m.Description, m.Category, m.Price, m.ImageURL, m.IsAvailable).Scan(&id)
	return id, err
}

package repository

import (
	"context"
	"errors"

	"github.com/SonthatQ/qr-restaurant/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TableRepository struct {
	DB *pgxpool.Pool
}

func NewTableRepository(db *pgxpool.Pool) *TableRepository {
	return &TableRepository{DB: db}
}

// GetActiveByToken returns the active table for a QR token, or nil when no
// such table exists.
func (r *TableRepository) GetActiveByToken(ctx context.Context, token string) (*model.Table, error) {
	q := `
		SELECT tableid, name, token, isactive
		FROM tables
		WHERE token=$1 AND isactive=TRUE
	`
	var t model.Table
	err := r.DB.QueryRow(ctx, q, token).Scan(&t.TableID, &t.Name, &t.Token, &t.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TableRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM tables`).Scan(&n)
	return n, err
}

func (r *TableRepository) Insert(ctx context.Context, name, token string, active bool) (int64, error) {
	var id int64
	q := `
		INSERT INTO tables (name, token, isactive)
		VALUES ($1, $2, $3)
		RETURNING tableid
	`
	err := r.DB.QueryRow(ctx, q, name, token, active).Scan(&id)
	return id, err
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/stocksync-go/internal/domain"
)

type PgProductRepository struct {
	db *sql.DB
}

func NewPgProductRepository(db *sql.DB) *PgProductRepository {
	return &PgProductRepository{db: db}
}

func (r *PgProductRepository) GetByID(
	ctx context.Context,
	id string,
) (*domain.Product, error) {
	query := `
        select id, name, brand, stock, sync_cursor_id, updated_at_utc
        from products
        where id = $1
    `
	row := r.db.QueryRowContext(ctx, query, id)

	var p domain.Product
	var cursorID uuid.NullUUID
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Brand,
		&p.Stock,
		&cursorID,
		&p.UpdatedAtUtc,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if cursorID.Valid {
		id := cursorID.UUID
		p.SyncCursorID = &id
	}
	return &p, nil
}

func (r *PgProductRepository) Upsert(
	ctx context.Context,
	p *domain.Product,
) error {
	if p.UpdatedAtUtc.IsZero() {
		p.UpdatedAtUtc = time.Now().UTC()
	}

	query := `
        insert into products (id, name, brand, stock, sync_cursor_id, updated_at_utc)
        values ($1,$2,$3,$4,$5,$6)
        on conflict (id) do update
        set name = excluded.name,
            brand = excluded.brand,
            stock = excluded.stock,
            sync_cursor_id = excluded.sync_cursor_id,
            updated_at_utc = excluded.updated_at_utc
    `
	var cursorID uuid.NullUUID
	if p.SyncCursorID != nil {
		cursorID = uuid.NullUUID{UUID: *p.SyncCursorID, Valid: true}
	}
	_, err := r.db.ExecContext(
		ctx, query,
		p.ID,
		p.Name,
		p.Brand,
		p.Stock,
		cursorID,
		p.UpdatedAtUtc,
	)
	return err
}

func (r *PgProductRepository) SyncedSince(
	ctx context.Context,
	since time.Time,
) ([]*domain.Product, error) {
	query := `
        select p.id, p.name, p.brand, p.stock, p.sync_cursor_id, p.updated_at_utc
        from products p
        join sync_cursors c on c.id = p.sync_cursor_id
        where c.read_at >= $1
        order by p.id
    `
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Product
	for rows.Next() {
		var p domain.Product
		var cursorID uuid.NullUUID
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Brand,
			&p.Stock,
			&cursorID,
			&p.UpdatedAtUtc,
		); err != nil {
			return nil, err
		}
		if cursorID.Valid {
			id := cursorID.UUID
			p.SyncCursorID = &id
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

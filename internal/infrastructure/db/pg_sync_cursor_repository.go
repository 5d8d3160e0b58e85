package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/stocksync-go/internal/domain"
)

type PgSyncCursorRepository struct {
	db *sql.DB
}

func NewPgSyncCursorRepository(db *sql.DB) *PgSyncCursorRepository {
	return &PgSyncCursorRepository{db: db}
}

// OpenOrCreateForDay relies on the partial unique index
// (platform, read_day) where write_at is null: two concurrent first-of-the
// day triggers resolve to a single row instead of corrupting the window
// boundary with duplicates.
func (r *PgSyncCursorRepository) OpenOrCreateForDay(
	ctx context.Context,
	cursor *domain.SyncCursor,
) (*domain.SyncCursor, error) {
	day := cursor.ReadAt.UTC().Truncate(24 * time.Hour)

	insert := `
        insert into sync_cursors (id, platform, read_at, read_day, write_at)
        values ($1,$2,$3,$4,null)
        on conflict (platform, read_day) where write_at is null do nothing
        returning id
    `
	var insertedID uuid.UUID
	err := r.db.QueryRowContext(ctx, insert, cursor.ID, string(cursor.Platform), cursor.ReadAt, day).Scan(&insertedID)
	if err == nil {
		return cursor, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// Lost to an existing open cursor for today; reuse it.
	query := `
        select id, platform, read_at, write_at
        from sync_cursors
        where platform = $1 and read_day = $2 and write_at is null
        limit 1
    `
	existing, err := r.scanOne(r.db.QueryRowContext(ctx, query, string(cursor.Platform), day))
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// Closed between our insert and select; retry once.
		return r.OpenOrCreateForDay(ctx, domain.NewSyncCursor(cursor.Platform))
	}
	return existing, nil
}

func (r *PgSyncCursorRepository) Save(
	ctx context.Context,
	cursor *domain.SyncCursor,
) error {
	query := `
        update sync_cursors
        set write_at = $2
        where id = $1
    `
	var writeAt sql.NullTime
	if cursor.WriteAt != nil {
		writeAt = sql.NullTime{Time: *cursor.WriteAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, cursor.ID, writeAt)
	return err
}

func (r *PgSyncCursorRepository) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.SyncCursor, error) {
	query := `
        select id, platform, read_at, write_at
        from sync_cursors
        where id = $1
    `
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PgSyncCursorRepository) LastClosed(
	ctx context.Context,
	platform domain.Platform,
) (*domain.SyncCursor, error) {
	query := `
        select id, platform, read_at, write_at
        from sync_cursors
        where platform = $1 and write_at is not null
        order by write_at desc
        limit 1
    `
	return r.scanOne(r.db.QueryRowContext(ctx, query, string(platform)))
}

func (r *PgSyncCursorRepository) scanOne(row *sql.Row) (*domain.SyncCursor, error) {
	var c domain.SyncCursor
	var platform string
	var writeAt sql.NullTime
	if err := row.Scan(&c.ID, &platform, &c.ReadAt, &writeAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Platform = domain.Platform(platform)
	if writeAt.Valid {
		t := writeAt.Time
		c.WriteAt = &t
	}
	return &c, nil
}

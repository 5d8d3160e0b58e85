package db

import (
	"context"
	"database/sql"

	"github.com/marketsync/stocksync-go/internal/domain"
)

type PgWebhookEventRepository struct {
	db *sql.DB
}

func NewPgWebhookEventRepository(db *sql.DB) *PgWebhookEventRepository {
	return &PgWebhookEventRepository{db: db}
}

// InsertIfNovel leans on the unique constraint (order_id, event_type):
// concurrent deliveries of the same pair resolve to exactly one inserted
// row, and the loser sees novel = false.
func (r *PgWebhookEventRepository) InsertIfNovel(
	ctx context.Context,
	ev *domain.WebhookEvent,
) (bool, error) {
	query := `
        insert into webhook_events (order_id, event_type, received_at)
        values ($1,$2,$3)
        on conflict (order_id, event_type) do nothing
    `
	res, err := r.db.ExecContext(ctx, query, ev.OrderID, ev.EventType, ev.ReceivedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PgWebhookEventRepository) Exists(
	ctx context.Context,
	orderID, eventType string,
) (bool, error) {
	query := `
        select exists(
            select 1 from webhook_events
            where order_id = $1 and event_type = $2
        )
    `
	var exists bool
	err := r.db.QueryRowContext(ctx, query, orderID, eventType).Scan(&exists)
	return exists, err
}

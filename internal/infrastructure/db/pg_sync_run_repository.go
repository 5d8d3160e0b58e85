package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/stocksync-go/internal/domain"
)

type PgSyncRunRepository struct {
	db *sql.DB
}

func NewPgSyncRunRepository(db *sql.DB) *PgSyncRunRepository {
	return &PgSyncRunRepository{db: db}
}

const syncRunColumns = `
        id, platform, direction, operation, status, start_time, end_time,
        items_processed, items_successful, items_failed,
        details, error_message, batch_id, sync_cursor_id, duration_ms
`

func (r *PgSyncRunRepository) Insert(
	ctx context.Context,
	run *domain.SyncRun,
) error {
	query := `
        insert into sync_runs (` + syncRunColumns + `)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    `
	_, err := r.db.ExecContext(ctx, query, r.insertArgs(run)...)
	return err
}

func (r *PgSyncRunRepository) Save(
	ctx context.Context,
	run *domain.SyncRun,
) error {
	query := `
        update sync_runs
        set status = $2,
            end_time = $3,
            items_processed = $4,
            items_successful = $5,
            items_failed = $6,
            details = $7,
            error_message = $8,
            duration_ms = $9
        where id = $1
    `
	_, err := r.db.ExecContext(
		ctx, query,
		run.ID,
		string(run.Status),
		nullTime(run.EndTime),
		run.ItemsProcessed,
		run.ItemsSuccessful,
		run.ItemsFailed,
		run.Details,
		run.ErrorMessage,
		nullInt64(run.DurationMs),
	)
	return err
}

func (r *PgSyncRunRepository) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.SyncRun, error) {
	query := `select ` + syncRunColumns + ` from sync_runs where id = $1`
	run, err := scanSyncRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

// Find applies the optional operator filters and pages the result,
// newest first. page is zero-based.
func (r *PgSyncRunRepository) Find(
	ctx context.Context,
	filter domain.SyncRunFilter,
	page, size int,
) ([]*domain.SyncRun, int64, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Platform != nil {
		add("platform = $%d", string(*filter.Platform))
	}
	if filter.Direction != nil {
		add("direction = $%d", string(*filter.Direction))
	}
	if filter.Operation != nil {
		add("operation = $%d", string(*filter.Operation))
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.StartDate != nil {
		add("start_time >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("start_time <= $%d", *filter.EndDate)
	}

	where := ""
	if len(conds) > 0 {
		where = " where " + strings.Join(conds, " and ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "select count(*) from sync_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	query := fmt.Sprintf(
		"select %s from sync_runs%s order by start_time desc limit $%d offset $%d",
		syncRunColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, size, page*size)

	runs, err := r.queryRuns(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func (r *PgSyncRunRepository) RecentByPlatform(
	ctx context.Context,
	platform domain.Platform,
) ([]*domain.SyncRun, error) {
	query := `select ` + syncRunColumns + `
        from sync_runs
        where platform = $1
        order by start_time desc
        limit 100`
	return r.queryRuns(ctx, query, string(platform))
}

func (r *PgSyncRunRepository) ByStatus(
	ctx context.Context,
	status domain.SyncStatus,
) ([]*domain.SyncRun, error) {
	query := `select ` + syncRunColumns + `
        from sync_runs
        where status = $1
        order by start_time desc`
	return r.queryRuns(ctx, query, string(status))
}

func (r *PgSyncRunRepository) Running(ctx context.Context) ([]*domain.SyncRun, error) {
	return r.ByStatus(ctx, domain.StatusStarted)
}

func (r *PgSyncRunRepository) Statistics(
	ctx context.Context,
	since time.Time,
) ([]domain.SyncStatistic, error) {
	query := `
        select platform, operation, status, count(*)
        from sync_runs
        where start_time >= $1
        group by platform, operation, status
        order by platform, operation, status
    `
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SyncStatistic
	for rows.Next() {
		var s domain.SyncStatistic
		var platform, operation, status string
		if err := rows.Scan(&platform, &operation, &status, &s.Count); err != nil {
			return nil, err
		}
		s.Platform = domain.Platform(platform)
		s.Operation = domain.SyncOperation(operation)
		s.Status = domain.SyncStatus(status)
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *PgSyncRunRepository) CountFailedSince(
	ctx context.Context,
	since time.Time,
) (int64, error) {
	query := `
        select count(*)
        from sync_runs
        where status = $1 and start_time >= $2
    `
	var count int64
	err := r.db.QueryRowContext(ctx, query, string(domain.StatusFailed), since).Scan(&count)
	return count, err
}

func (r *PgSyncRunRepository) LatestSuccessful(
	ctx context.Context,
	platform domain.Platform,
	operation domain.SyncOperation,
	direction domain.SyncDirection,
) (*domain.SyncRun, error) {
	query := `select ` + syncRunColumns + `
        from sync_runs
        where platform = $1 and operation = $2 and direction = $3 and status = $4
        order by start_time desc
        limit 1`
	run, err := scanSyncRun(r.db.QueryRowContext(
		ctx, query,
		string(platform), string(operation), string(direction), string(domain.StatusSuccess),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func (r *PgSyncRunRepository) DeleteOlderThan(
	ctx context.Context,
	olderThan time.Time,
) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		`delete from sync_runs where start_time < $1 and status <> $2`,
		olderThan, string(domain.StatusStarted),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PgSyncRunRepository) queryRuns(ctx context.Context, query string, args ...interface{}) ([]*domain.SyncRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

func (r *PgSyncRunRepository) insertArgs(run *domain.SyncRun) []interface{} {
	var cursorID uuid.NullUUID
	if run.SyncCursorID != nil {
		cursorID = uuid.NullUUID{UUID: *run.SyncCursorID, Valid: true}
	}
	return []interface{}{
		run.ID,
		string(run.Platform),
		string(run.Direction),
		string(run.Operation),
		string(run.Status),
		run.StartTime,
		nullTime(run.EndTime),
		run.ItemsProcessed,
		run.ItemsSuccessful,
		run.ItemsFailed,
		run.Details,
		run.ErrorMessage,
		run.BatchID,
		cursorID,
		nullInt64(run.DurationMs),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncRun(row rowScanner) (*domain.SyncRun, error) {
	var run domain.SyncRun
	var platform, direction, operation, status string
	var endTime sql.NullTime
	var cursorID uuid.NullUUID
	var durationMs sql.NullInt64

	if err := row.Scan(
		&run.ID,
		&platform,
		&direction,
		&operation,
		&status,
		&run.StartTime,
		&endTime,
		&run.ItemsProcessed,
		&run.ItemsSuccessful,
		&run.ItemsFailed,
		&run.Details,
		&run.ErrorMessage,
		&run.BatchID,
		&cursorID,
		&durationMs,
	); err != nil {
		return nil, err
	}

	run.Platform = domain.Platform(platform)
	run.Direction = domain.SyncDirection(direction)
	run.Operation = domain.SyncOperation(operation)
	run.Status = domain.SyncStatus(status)
	if endTime.Valid {
		t := endTime.Time
		run.EndTime = &t
	}
	if cursorID.Valid {
		id := cursorID.UUID
		run.SyncCursorID = &id
	}
	if durationMs.Valid {
		d := durationMs.Int64
		run.DurationMs = &d
	}
	return &run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

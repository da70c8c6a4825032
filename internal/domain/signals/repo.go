package signals

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linesync/inventory/internal/domain/errs"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Open вставляет OPEN-строку нового сигнала. Конфликт по частичному
// уникальному индексу (item_id WHERE status='OPEN') означает, что сигнал
// по позиции уже открыт, — возвращаем (nil, nil), это не ошибка.
// Проверка "есть ли открытый" живёт в store, а не в приложении: две
// конкурентные вставки разрулит индекс, а не check-then-insert.
func (r *Repo) Open(ctx context.Context, itemID string, triggeredAtQty int, triggerEventID uuid.UUID, reorderPoint, reorderQty int) (*Signal, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO replenishment_signals (item_id, triggered_at_qty, reorder_point, reorder_qty, trigger_event_id, status)
		VALUES ($1,$2,$3,$4,$5,'OPEN')
		ON CONFLICT (item_id) WHERE status = 'OPEN' DO NOTHING
		RETURNING row_id, signal_id, created_ts, item_id, triggered_at_qty, reorder_point, reorder_qty, trigger_event_id, status
	`, itemID, triggeredAtQty, reorderPoint, reorderQty, triggerEventID)

	var s Signal
	if err := scanSignal(row, &s); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("open signal: %w", err)
	}
	s.CurrentQty = int64(s.TriggeredAtQty)
	return &s, nil
}

// Acknowledge реализует append-only переход OPEN -> ACKNOWLEDGED:
// вставляем новую строку с тем же signal_id, копируя поля последней.
func (r *Repo) Acknowledge(ctx context.Context, signalID uuid.UUID) (*Signal, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO replenishment_signals (signal_id, item_id, triggered_at_qty, reorder_point, reorder_qty, trigger_event_id, status)
		SELECT signal_id, item_id, triggered_at_qty, reorder_point, reorder_qty, trigger_event_id, 'ACKNOWLEDGED'
		FROM replenishment_signals
		WHERE signal_id = $1
		ORDER BY created_ts DESC, row_id DESC
		LIMIT 1
		RETURNING row_id, signal_id, created_ts, item_id, triggered_at_qty, reorder_point, reorder_qty, trigger_event_id, status
	`, signalID)

	var s Signal
	if err := scanSignal(row, &s); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", errs.ErrSignalNotFound, signalID)
		}
		return nil, fmt.Errorf("acknowledge signal: %w", err)
	}

	if err := r.attachCurrentQty(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// List возвращает по одной строке на сигнал — последней по created_ts, —
// затем фильтрует по статусу и подставляет живой остаток из
// inventory_current. Исторический triggered_at_qty не трогаем.
func (r *Repo) List(ctx context.Context, status Status, limit int) ([]Signal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.row_id, s.signal_id, s.created_ts, s.item_id, s.triggered_at_qty,
		       s.reorder_point, s.reorder_qty, s.trigger_event_id, s.status,
		       COALESCE(ic.on_hand_qty, 0)
		FROM (
			SELECT DISTINCT ON (signal_id) *
			FROM replenishment_signals
			ORDER BY signal_id, created_ts DESC, row_id DESC
		) s
		LEFT JOIN inventory_current ic ON ic.item_id = s.item_id
		WHERE ($1 = '' OR s.status = $1)
		ORDER BY s.created_ts DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.RowID, &s.SignalID, &s.CreatedTS, &s.ItemID, &s.TriggeredAtQty,
			&s.ReorderPoint, &s.ReorderQty, &s.TriggerEventID, &s.Status, &s.CurrentQty); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// HasOpen — быстрая предварительная проверка перед Open; решающее
// слово всё равно за уникальным индексом.
func (r *Repo) HasOpen(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM replenishment_signals
			WHERE item_id = $1 AND status = 'OPEN'
		)
	`, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has open signal: %w", err)
	}
	return exists, nil
}

func (r *Repo) attachCurrentQty(ctx context.Context, s *Signal) error {
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT on_hand_qty FROM inventory_current WHERE item_id = $1), 0)
	`, s.ItemID).Scan(&s.CurrentQty)
	if err != nil {
		return fmt.Errorf("signal current qty: %w", err)
	}
	return nil
}

func scanSignal(row pgx.Row, s *Signal) error {
	return row.Scan(&s.RowID, &s.SignalID, &s.CreatedTS, &s.ItemID, &s.TriggeredAtQty,
		&s.ReorderPoint, &s.ReorderQty, &s.TriggerEventID, &s.Status)
}

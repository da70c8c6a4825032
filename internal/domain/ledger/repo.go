package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linesync/inventory/internal/domain/errs"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Append добавляет событие в журнал. Только INSERT: журнал append-only,
// UPDATE/DELETE по scan_events в домене не существует.
func (r *Repo) Append(ctx context.Context, et EventType, stationID, barcodeRaw, itemID string, qty int, userEmail *string) (*ScanEvent, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %d", errs.ErrInvalidQuantity, qty)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO scan_events (event_type, station_id, barcode_raw, item_id, qty, user_email)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING event_id, event_ts, event_type, station_id, barcode_raw, item_id, qty, user_email
	`, string(et), stationID, barcodeRaw, itemID, qty, userEmail)

	var e ScanEvent
	if err := row.Scan(&e.EventID, &e.EventTS, &e.EventType, &e.StationID, &e.BarcodeRaw, &e.ItemID, &e.Qty, &e.UserEmail); err != nil {
		return nil, fmt.Errorf("append scan event: %w", err)
	}
	return &e, nil
}

// CurrentInventory возвращает проекцию по позиции, nil — если по ней
// не было ни одного события (отсутствие, а не нулевая строка).
func (r *Repo) CurrentInventory(ctx context.Context, itemID string) (*ItemInventory, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT item_id, intake_total, consume_total, on_hand_qty, last_activity_ts
		FROM inventory_current
		WHERE item_id = $1
	`, itemID)

	var inv ItemInventory
	if err := row.Scan(&inv.ItemID, &inv.IntakeTotal, &inv.ConsumeTotal, &inv.OnHandQty, &inv.LastActivityTS); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("current inventory: %w", err)
	}
	return &inv, nil
}

func (r *Repo) ListInventory(ctx context.Context, limit int) ([]ItemInventory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id, intake_total, consume_total, on_hand_qty, last_activity_ts
		FROM inventory_current
		ORDER BY item_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var out []ItemInventory
	for rows.Next() {
		var inv ItemInventory
		if err := rows.Scan(&inv.ItemID, &inv.IntakeTotal, &inv.ConsumeTotal, &inv.OnHandQty, &inv.LastActivityTS); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *Repo) RecentEvents(ctx context.Context, limit int) ([]ScanEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, event_ts, event_type, station_id, barcode_raw, item_id, qty, user_email
		FROM scan_events
		ORDER BY event_ts DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []ScanEvent
	for rows.Next() {
		var e ScanEvent
		if err := rows.Scan(&e.EventID, &e.EventTS, &e.EventType, &e.StationID, &e.BarcodeRaw, &e.ItemID, &e.Qty, &e.UserEmail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

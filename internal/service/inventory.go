package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linesync/inventory/internal/domain/barcode"
	"github.com/linesync/inventory/internal/domain/errs"
	"github.com/linesync/inventory/internal/domain/ledger"
	"github.com/linesync/inventory/internal/domain/signals"
	"github.com/linesync/inventory/internal/infra/metrics"
)

// Ledger — журнал событий (единственный источник правды по остаткам).
type Ledger interface {
	Append(ctx context.Context, et ledger.EventType, stationID, barcodeRaw, itemID string, qty int, userEmail *string) (*ledger.ScanEvent, error)
	CurrentInventory(ctx context.Context, itemID string) (*ledger.ItemInventory, error)
	ListInventory(ctx context.Context, limit int) ([]ledger.ItemInventory, error)
	RecentEvents(ctx context.Context, limit int) ([]ledger.ScanEvent, error)
}

// SignalStore — история сигналов пополнения.
type SignalStore interface {
	Open(ctx context.Context, itemID string, triggeredAtQty int, triggerEventID uuid.UUID, reorderPoint, reorderQty int) (*signals.Signal, error)
	Acknowledge(ctx context.Context, signalID uuid.UUID) (*signals.Signal, error)
	List(ctx context.Context, status signals.Status, limit int) ([]signals.Signal, error)
	HasOpen(ctx context.Context, itemID string) (bool, error)
}

// Notifier — необязательное оповещение об открытии сигнала (best-effort).
type Notifier interface {
	SignalOpened(ctx context.Context, s *signals.Signal) error
}

type Options struct {
	ReorderPoint   int
	ReorderQty     int
	DebounceWindow time.Duration
	DefaultStation string
}

type Inventory struct {
	log     *slog.Logger
	ledger  Ledger
	signals SignalStore
	notify  Notifier
	opts    Options

	now func() time.Time

	// Дебаунс повторных сканов: barcode_raw -> время последнего скана.
	mu        sync.Mutex
	lastScans map[string]time.Time
}

func New(log *slog.Logger, l Ledger, s SignalStore, notify Notifier, opts Options) *Inventory {
	if opts.DefaultStation == "" {
		opts.DefaultStation = "packing-slip"
	}
	return &Inventory{
		log:       log,
		ledger:    l,
		signals:   s,
		notify:    notify,
		opts:      opts,
		now:       time.Now,
		lastScans: make(map[string]time.Time),
	}
}

// onHand перечитывает остаток по позиции из журнала после записи события.
// nil-проекция означает, что событий по позиции ещё нет, — остаток ноль.
func (s *Inventory) onHand(ctx context.Context, itemID string) (int64, error) {
	inv, err := s.ledger.CurrentInventory(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if inv == nil {
		return 0, nil
	}
	return inv.OnHandQty, nil
}

// checkDebounce отклоняет повторный скан того же payload внутри окна.
// Записи старше минуты вычищаем по ходу.
func (s *Inventory) checkDebounce(barcodeRaw string) error {
	if s.opts.DebounceWindow <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if last, ok := s.lastScans[barcodeRaw]; ok {
		if elapsed := now.Sub(last); elapsed < s.opts.DebounceWindow {
			metrics.DebounceRejected.Inc()
			wait := (s.opts.DebounceWindow - elapsed).Round(100 * time.Millisecond)
			return fmt.Errorf("%w: wait %s", errs.ErrDuplicateScan, wait)
		}
	}
	s.lastScans[barcodeRaw] = now

	cutoff := now.Add(-time.Minute)
	for k, v := range s.lastScans {
		if v.Before(cutoff) {
			delete(s.lastScans, k)
		}
	}
	return nil
}

// Intake разбирает штрихкод и пишет INTAKE-событие.
// Возвращает событие и остаток после него.
func (s *Inventory) Intake(ctx context.Context, stationID, barcodeRaw string, userEmail *string) (*ledger.ScanEvent, int64, error) {
	if err := s.checkDebounce(barcodeRaw); err != nil {
		return nil, 0, err
	}

	p, err := barcode.Parse(barcodeRaw)
	if err != nil {
		return nil, 0, err
	}

	ev, err := s.ledger.Append(ctx, ledger.EventIntake, stationID, barcodeRaw, p.ItemID, p.Qty, userEmail)
	if err != nil {
		return nil, 0, err
	}
	metrics.ScansTotal.WithLabelValues(string(ledger.EventIntake)).Inc()

	onHand, err := s.onHand(ctx, p.ItemID)
	if err != nil {
		return nil, 0, err
	}

	s.log.Info("intake event created",
		"event_id", ev.EventID, "item_id", ev.ItemID, "qty", ev.Qty, "on_hand_qty", onHand)
	return ev, onHand, nil
}

// Consume пишет CONSUME-событие и синхронно прогоняет правило пополнения.
// Третьим значением возвращается открытый сигнал, если правило сработало,
// иначе nil, — чтобы клиент получил его в том же ответе, без второго запроса.
func (s *Inventory) Consume(ctx context.Context, stationID, barcodeRaw string, userEmail *string) (*ledger.ScanEvent, int64, *signals.Signal, error) {
	if err := s.checkDebounce(barcodeRaw); err != nil {
		return nil, 0, nil, err
	}

	p, err := barcode.Parse(barcodeRaw)
	if err != nil {
		return nil, 0, nil, err
	}

	// Остаток может уйти в минус: проверки пола по условию задачи нет.
	ev, err := s.ledger.Append(ctx, ledger.EventConsume, stationID, barcodeRaw, p.ItemID, p.Qty, userEmail)
	if err != nil {
		return nil, 0, nil, err
	}
	metrics.ScansTotal.WithLabelValues(string(ledger.EventConsume)).Inc()

	onHand, err := s.onHand(ctx, p.ItemID)
	if err != nil {
		return nil, 0, nil, err
	}

	s.log.Info("consume event created",
		"event_id", ev.EventID, "item_id", ev.ItemID, "qty", ev.Qty, "on_hand_qty", onHand)

	sig, err := s.evaluateReplenishment(ctx, p.ItemID, onHand, ev.EventID)
	if err != nil {
		return nil, 0, nil, err
	}
	return ev, onHand, sig, nil
}

// evaluateReplenishment — правило пополнения после consume.
// Порог включительный: onHand == reorder_point уже открывает сигнал.
func (s *Inventory) evaluateReplenishment(ctx context.Context, itemID string, onHand int64, triggerEventID uuid.UUID) (*signals.Signal, error) {
	if onHand > int64(s.opts.ReorderPoint) {
		return nil, nil
	}

	open, err := s.signals.HasOpen(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, nil
	}

	// Вставка с конфликтом по частичному индексу: (nil, nil) значит,
	// что параллельный consume успел открыть сигнал первым.
	sig, err := s.signals.Open(ctx, itemID, int(onHand), triggerEventID, s.opts.ReorderPoint, s.opts.ReorderQty)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, nil
	}

	metrics.SignalsOpened.Inc()
	s.log.Info("replenishment signal opened",
		"signal_id", sig.SignalID, "item_id", itemID, "triggered_at_qty", sig.TriggeredAtQty,
		"reorder_point", sig.ReorderPoint)

	if s.notify != nil {
		if err := s.notify.SignalOpened(ctx, sig); err != nil {
			s.log.Error("signal notification failed", "signal_id", sig.SignalID, "err", err)
		}
	}
	return sig, nil
}

type BulkItem struct {
	ItemID string
	Qty    int
}

type BulkFailure struct {
	ItemID string
	Reason string
}

type BulkResult struct {
	Events     []BulkEvent
	Failures   []BulkFailure
	TotalItems int
	TotalQty   int
}

type BulkEvent struct {
	Event     *ledger.ScanEvent
	OnHandQty int64
}

// BulkIntake применяет позиции накладной как последовательность intake.
// Семантика best-effort: ошибка по одной позиции не откатывает остальные,
// неудачи возвращаются поимённо в Failures.
func (s *Inventory) BulkIntake(ctx context.Context, stationID string, items []BulkItem, userEmail *string) (BulkResult, error) {
	if stationID == "" {
		stationID = s.opts.DefaultStation
	}

	var res BulkResult
	for _, it := range items {
		if it.ItemID == "" || it.Qty < 1 {
			res.Failures = append(res.Failures, BulkFailure{ItemID: it.ItemID, Reason: "item_id and qty >= 1 required"})
			continue
		}

		ev, onHand, err := s.Intake(ctx, stationID, barcode.Synthetic(it.ItemID, it.Qty), userEmail)
		if err != nil {
			s.log.Warn("bulk intake item failed", "item_id", it.ItemID, "err", err)
			res.Failures = append(res.Failures, BulkFailure{ItemID: it.ItemID, Reason: err.Error()})
			continue
		}
		res.Events = append(res.Events, BulkEvent{Event: ev, OnHandQty: onHand})
		res.TotalItems++
		res.TotalQty += ev.Qty
	}
	return res, nil
}

// Acknowledge переводит сигнал в ACKNOWLEDGED (append-only переход).
func (s *Inventory) Acknowledge(ctx context.Context, signalID uuid.UUID) (*signals.Signal, error) {
	return s.signals.Acknowledge(ctx, signalID)
}

// Inventory — проекция по позиции; позиции без событий не существуют.
func (s *Inventory) Inventory(ctx context.Context, itemID string) (*ledger.ItemInventory, error) {
	inv, err := s.ledger.CurrentInventory(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrItemNotFound, itemID)
	}
	return inv, nil
}

func (s *Inventory) ListInventory(ctx context.Context, limit int) ([]ledger.ItemInventory, error) {
	return s.ledger.ListInventory(ctx, limit)
}

func (s *Inventory) ListSignals(ctx context.Context, status signals.Status, limit int) ([]signals.Signal, error) {
	return s.signals.List(ctx, status, limit)
}

func (s *Inventory) RecentEvents(ctx context.Context, limit int) ([]ledger.ScanEvent, error) {
	return s.ledger.RecentEvents(ctx, limit)
}

// ReorderPoint нужен проекциям для флага below_reorder_point.
func (s *Inventory) ReorderPoint() int { return s.opts.ReorderPoint }

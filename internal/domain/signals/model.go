package signals

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusFulfilled    Status = "FULFILLED"
)

// Signal — одна строка истории сигнала. Жизненный цикл сигнала — это
// набор строк с общим SignalID; текущее состояние определяет строка
// с максимальным CreatedTS.
type Signal struct {
	RowID          int64
	SignalID       uuid.UUID
	CreatedTS      time.Time
	ItemID         string
	TriggeredAtQty int
	ReorderPoint   int
	ReorderQty     int
	TriggerEventID uuid.UUID
	Status         Status

	// CurrentQty — живой остаток на момент чтения (join с inventory_current),
	// только для отображения. TriggeredAtQty — исторический снимок.
	CurrentQty int64
}

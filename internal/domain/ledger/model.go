package ledger

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventIntake  EventType = "INTAKE"
	EventConsume EventType = "CONSUME"
)

// ScanEvent — неизменяемый факт движения: одна строка журнала.
type ScanEvent struct {
	EventID    uuid.UUID
	EventTS    time.Time
	EventType  EventType
	StationID  string
	BarcodeRaw string
	ItemID     string
	Qty        int
	UserEmail  *string
}

// ItemInventory — производная проекция по позиции. Остаток всегда
// считается из журнала, отдельного счётчика нет.
type ItemInventory struct {
	ItemID         string
	IntakeTotal    int64
	ConsumeTotal   int64
	OnHandQty      int64
	LastActivityTS time.Time
}

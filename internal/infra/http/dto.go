package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/linesync/inventory/internal/domain/ledger"
	"github.com/linesync/inventory/internal/domain/signals"
	"github.com/linesync/inventory/internal/service"
)

type scanRequest struct {
	StationID  string `json:"station_id" validate:"required"`
	BarcodeRaw string `json:"barcode_raw" validate:"required"`
}

type bulkIntakeRequest struct {
	StationID string     `json:"station_id"`
	Items     []bulkItem `json:"items" validate:"required,min=1"`
}

type bulkItem struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

type scanEventResponse struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventTS         time.Time       `json:"event_ts"`
	EventType       string          `json:"event_type"`
	StationID       string          `json:"station_id"`
	ItemID          string          `json:"item_id"`
	Qty             int             `json:"qty"`
	OnHandQty       int64           `json:"on_hand_qty"`
	TriggeredSignal *signalResponse `json:"triggered_signal,omitempty"`
}

type signalResponse struct {
	SignalID       uuid.UUID `json:"signal_id"`
	CreatedTS      time.Time `json:"created_ts"`
	ItemID         string    `json:"item_id"`
	CurrentQty     int64     `json:"current_qty"`
	TriggeredAtQty int       `json:"triggered_at_qty"`
	ReorderPoint   int       `json:"reorder_point"`
	ReorderQty     int       `json:"reorder_qty"`
	Status         string    `json:"status"`
}

type signalListResponse struct {
	Signals   []signalResponse `json:"signals"`
	TotalOpen int              `json:"total_open"`
}

type inventoryItemResponse struct {
	ItemID            string    `json:"item_id"`
	OnHandQty         int64     `json:"on_hand_qty"`
	IntakeTotal       int64     `json:"intake_total"`
	ConsumeTotal      int64     `json:"consume_total"`
	LastActivityTS    time.Time `json:"last_activity_ts"`
	BelowReorderPoint bool      `json:"below_reorder_point"`
}

type inventoryListResponse struct {
	Items      []inventoryItemResponse `json:"items"`
	TotalItems int                     `json:"total_items"`
}

type bulkFailureResponse struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

type bulkIntakeResponse struct {
	Events     []scanEventResponse   `json:"events"`
	Failures   []bulkFailureResponse `json:"failures"`
	TotalItems int                   `json:"total_items"`
	TotalQty   int                   `json:"total_qty"`
}

type recentActivityResponse struct {
	Events []scanEventResponse `json:"events"`
	Limit  int                 `json:"limit"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

type currentUserResponse struct {
	Email           *string `json:"email"`
	Name            *string `json:"name"`
	DisplayName     string  `json:"display_name"`
	IsAuthenticated bool    `json:"is_authenticated"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func toEventResponse(ev *ledger.ScanEvent, onHand int64, sig *signals.Signal) scanEventResponse {
	out := scanEventResponse{
		EventID:   ev.EventID,
		EventTS:   ev.EventTS,
		EventType: string(ev.EventType),
		StationID: ev.StationID,
		ItemID:    ev.ItemID,
		Qty:       ev.Qty,
		OnHandQty: onHand,
	}
	if sig != nil {
		r := toSignalResponse(*sig)
		out.TriggeredSignal = &r
	}
	return out
}

func toSignalResponse(s signals.Signal) signalResponse {
	return signalResponse{
		SignalID:       s.SignalID,
		CreatedTS:      s.CreatedTS,
		ItemID:         s.ItemID,
		CurrentQty:     s.CurrentQty,
		TriggeredAtQty: s.TriggeredAtQty,
		ReorderPoint:   s.ReorderPoint,
		ReorderQty:     s.ReorderQty,
		Status:         string(s.Status),
	}
}

func toInventoryResponse(inv ledger.ItemInventory, reorderPoint int) inventoryItemResponse {
	return inventoryItemResponse{
		ItemID:            inv.ItemID,
		OnHandQty:         inv.OnHandQty,
		IntakeTotal:       inv.IntakeTotal,
		ConsumeTotal:      inv.ConsumeTotal,
		LastActivityTS:    inv.LastActivityTS,
		BelowReorderPoint: inv.OnHandQty <= int64(reorderPoint),
	}
}

func toBulkResponse(res service.BulkResult) bulkIntakeResponse {
	out := bulkIntakeResponse{
		Events:     []scanEventResponse{},
		Failures:   []bulkFailureResponse{},
		TotalItems: res.TotalItems,
		TotalQty:   res.TotalQty,
	}
	for _, e := range res.Events {
		out.Events = append(out.Events, toEventResponse(e.Event, e.OnHandQty, nil))
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, bulkFailureResponse{ItemID: f.ItemID, Reason: f.Reason})
	}
	return out
}

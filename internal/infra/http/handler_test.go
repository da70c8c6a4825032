package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesync/inventory/internal/domain/errs"
	"github.com/linesync/inventory/internal/domain/ledger"
	"github.com/linesync/inventory/internal/domain/signals"
	"github.com/linesync/inventory/internal/service"
)

type memLedger struct {
	events []ledger.ScanEvent
}

func (m *memLedger) Append(_ context.Context, et ledger.EventType, stationID, barcodeRaw, itemID string, qty int, userEmail *string) (*ledger.ScanEvent, error) {
	e := ledger.ScanEvent{
		EventID: uuid.New(), EventTS: time.Now(), EventType: et,
		StationID: stationID, BarcodeRaw: barcodeRaw, ItemID: itemID, Qty: qty, UserEmail: userEmail,
	}
	m.events = append(m.events, e)
	return &e, nil
}

func (m *memLedger) CurrentInventory(_ context.Context, itemID string) (*ledger.ItemInventory, error) {
	var inv ledger.ItemInventory
	inv.ItemID = itemID
	found := false
	for _, e := range m.events {
		if e.ItemID != itemID {
			continue
		}
		found = true
		if e.EventType == ledger.EventIntake {
			inv.IntakeTotal += int64(e.Qty)
		} else {
			inv.ConsumeTotal += int64(e.Qty)
		}
		inv.LastActivityTS = e.EventTS
	}
	if !found {
		return nil, nil
	}
	inv.OnHandQty = inv.IntakeTotal - inv.ConsumeTotal
	return &inv, nil
}

func (m *memLedger) ListInventory(ctx context.Context, limit int) ([]ledger.ItemInventory, error) {
	seen := map[string]bool{}
	var out []ledger.ItemInventory
	for _, e := range m.events {
		if seen[e.ItemID] || len(out) >= limit {
			continue
		}
		seen[e.ItemID] = true
		inv, _ := m.CurrentInventory(ctx, e.ItemID)
		out = append(out, *inv)
	}
	return out, nil
}

func (m *memLedger) RecentEvents(_ context.Context, limit int) ([]ledger.ScanEvent, error) {
	var out []ledger.ScanEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

type memSignals struct {
	rows []signals.Signal
}

func (m *memSignals) Open(_ context.Context, itemID string, triggeredAtQty int, triggerEventID uuid.UUID, reorderPoint, reorderQty int) (*signals.Signal, error) {
	for _, r := range m.rows {
		if r.ItemID == itemID && r.Status == signals.StatusOpen {
			return nil, nil
		}
	}
	s := signals.Signal{
		RowID: int64(len(m.rows) + 1), SignalID: uuid.New(), CreatedTS: time.Now(),
		ItemID: itemID, TriggeredAtQty: triggeredAtQty, ReorderPoint: reorderPoint,
		ReorderQty: reorderQty, TriggerEventID: triggerEventID, Status: signals.StatusOpen,
		CurrentQty: int64(triggeredAtQty),
	}
	m.rows = append(m.rows, s)
	return &s, nil
}

func (m *memSignals) Acknowledge(_ context.Context, signalID uuid.UUID) (*signals.Signal, error) {
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].SignalID == signalID {
			next := m.rows[i]
			next.RowID = int64(len(m.rows) + 1)
			next.CreatedTS = time.Now()
			next.Status = signals.StatusAcknowledged
			m.rows = append(m.rows, next)
			return &next, nil
		}
	}
	return nil, errs.ErrSignalNotFound
}

func (m *memSignals) List(_ context.Context, status signals.Status, limit int) ([]signals.Signal, error) {
	latest := map[uuid.UUID]signals.Signal{}
	for _, r := range m.rows {
		cur, ok := latest[r.SignalID]
		if !ok || r.RowID > cur.RowID {
			latest[r.SignalID] = r
		}
	}
	var out []signals.Signal
	for _, r := range latest {
		if status != "" && r.Status != status {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memSignals) HasOpen(_ context.Context, itemID string) (bool, error) {
	for _, r := range m.rows {
		if r.ItemID == itemID && r.Status == signals.StatusOpen {
			return true, nil
		}
	}
	return false, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestAPI(t *testing.T) (*API, *http.ServeMux) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	svc := service.New(log, &memLedger{}, &memSignals{}, nil,
		service.Options{ReorderPoint: 10, ReorderQty: 24})
	api := NewAPI(log, svc, nil, okPinger{}, "test")
	mux := http.NewServeMux()
	api.Register(mux)
	return api, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIntakeAndConsumeFlow(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/events/intake",
		scanRequest{StationID: "cam-1", BarcodeRaw: "ITEM=A;QTY=24"})
	require.Equal(t, http.StatusOK, rec.Code)

	var ev scanEventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "INTAKE", ev.EventType)
	assert.EqualValues(t, 24, ev.OnHandQty)
	assert.Nil(t, ev.TriggeredSignal)

	rec = doJSON(t, mux, http.MethodPost, "/api/events/consume",
		scanRequest{StationID: "cam-1", BarcodeRaw: "ITEM=A;QTY=14"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.EqualValues(t, 10, ev.OnHandQty)
	require.NotNil(t, ev.TriggeredSignal, "signal must ride along in the consume response")
	assert.Equal(t, "OPEN", ev.TriggeredSignal.Status)
	assert.Equal(t, 10, ev.TriggeredSignal.TriggeredAtQty)

	// Подтверждаем сигнал и убеждаемся, что из OPEN-фильтра он ушёл.
	rec = doJSON(t, mux, http.MethodPost, "/api/signals/"+ev.TriggeredSignal.SignalID.String()+"/acknowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/signals?status=OPEN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list signalListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Signals)
	assert.Zero(t, list.TotalOpen)

	rec = doJSON(t, mux, http.MethodGet, "/api/signals", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Signals, 1)
	assert.Equal(t, "ACKNOWLEDGED", list.Signals[0].Status)
}

func TestStatusMapping(t *testing.T) {
	_, mux := newTestAPI(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"malformed barcode", http.MethodPost, "/api/events/intake",
			scanRequest{StationID: "s", BarcodeRaw: "QTY=5"}, http.StatusBadRequest, "malformed_barcode"},
		{"invalid quantity", http.MethodPost, "/api/events/intake",
			scanRequest{StationID: "s", BarcodeRaw: "ITEM=X;QTY=0"}, http.StatusBadRequest, "invalid_quantity"},
		{"missing fields", http.MethodPost, "/api/events/intake",
			map[string]string{"station_id": "s"}, http.StatusBadRequest, "invalid_payload"},
		{"unknown item", http.MethodGet, "/api/inventory/NOPE", nil, http.StatusNotFound, "item_not_found"},
		{"unknown signal", http.MethodPost, "/api/signals/" + uuid.NewString() + "/acknowledge",
			nil, http.StatusNotFound, "signal_not_found"},
		{"bad signal id", http.MethodPost, "/api/signals/not-a-uuid/acknowledge",
			nil, http.StatusBadRequest, "invalid_payload"},
		{"bad status filter", http.MethodGet, "/api/signals?status=WAT", nil, http.StatusBadRequest, "invalid_payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, mux, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			var er errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
			assert.Equal(t, tt.wantErr, er.Code)
		})
	}
}

func TestDebounceReturns429(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	svc := service.New(log, &memLedger{}, &memSignals{}, nil,
		service.Options{ReorderPoint: 10, ReorderQty: 24, DebounceWindow: 3 * time.Second})
	api := NewAPI(log, svc, nil, okPinger{}, "test")
	mux := http.NewServeMux()
	api.Register(mux)

	body := scanRequest{StationID: "s", BarcodeRaw: "ITEM=A;QTY=1"}
	rec := doJSON(t, mux, http.MethodPost, "/api/events/intake", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/events/intake", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var er errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "duplicate_scan", er.Code)
}

func TestBulkIntake(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/events/bulk-intake", bulkIntakeRequest{
		Items: []bulkItem{
			{ItemID: "P-1", Qty: 4},
			{ItemID: "", Qty: 2},
			{ItemID: "P-2", Qty: 6},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out bulkIntakeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.TotalItems)
	assert.Equal(t, 10, out.TotalQty)
	require.Len(t, out.Failures, 1)
	require.Len(t, out.Events, 2)
	assert.Equal(t, "packing-slip", out.Events[0].StationID)

	rec = doJSON(t, mux, http.MethodPost, "/api/events/bulk-intake", bulkIntakeRequest{Items: nil})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserIdentityFromHeaders(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("X-Forwarded-Email", "ops@example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var u currentUserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	require.NotNil(t, u.Email)
	assert.Equal(t, "ops@example.com", *u.Email)
	assert.Equal(t, "ops", u.DisplayName)
	assert.True(t, u.IsAuthenticated)
}

func TestScanRecordsUserEmail(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	ml := &memLedger{}
	svc := service.New(log, ml, &memSignals{}, nil, service.Options{ReorderPoint: 10, ReorderQty: 24})
	api := NewAPI(log, svc, nil, okPinger{}, "test")
	mux := http.NewServeMux()
	api.Register(mux)

	raw, _ := json.Marshal(scanRequest{StationID: "s", BarcodeRaw: "ITEM=A;QTY=2"})
	req := httptest.NewRequest(http.MethodPost, "/api/events/intake", bytes.NewReader(raw))
	req.Header.Set("X-Forwarded-Email", "ops@example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, ml.events, 1)
	require.NotNil(t, ml.events[0].UserEmail)
	assert.Equal(t, "ops@example.com", *ml.events[0].UserEmail)
}

func TestHealth(t *testing.T) {
	_, mux := newTestAPI(t)
	rec := doJSON(t, mux, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var h healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "connected", h.Database)
}

func TestExportFailureIsNotStorageError(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.exportFailed(rec, errors.New("coordinates are invalid"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var er errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "export_failed", er.Code)
}

func TestInventoryExport(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/events/intake",
		scanRequest{StationID: "s", BarcodeRaw: "ITEM=A;QTY=5"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/inventory/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Header().Get("Content-Disposition"), "inventory.xlsx"))
	assert.NotZero(t, rec.Body.Len())
}

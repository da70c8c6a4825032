package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/linesync/inventory/internal/domain/errs"
	"github.com/linesync/inventory/internal/domain/signals"
	"github.com/linesync/inventory/internal/infra/vision"
	"github.com/linesync/inventory/internal/service"
)

const maxSlipImageBytes = 20 << 20

// SlipParser — клиент vision-модели для распознавания накладных.
type SlipParser interface {
	ParseImage(ctx context.Context, image []byte, mediaType string) (vision.SlipResult, error)
}

// Pinger — проверка доступности store для /api/health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	log      *slog.Logger
	svc      *service.Inventory
	slips    SlipParser
	db       Pinger
	validate *validator.Validate
	version  string
}

func NewAPI(log *slog.Logger, svc *service.Inventory, slips SlipParser, db Pinger, version string) *API {
	return &API{
		log:      log,
		svc:      svc,
		slips:    slips,
		db:       db,
		validate: validator.New(),
		version:  version,
	}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.health)
	mux.HandleFunc("GET /api/me", a.me)
	mux.HandleFunc("POST /api/events/intake", a.createIntake)
	mux.HandleFunc("POST /api/events/consume", a.createConsume)
	mux.HandleFunc("POST /api/events/bulk-intake", a.bulkIntake)
	mux.HandleFunc("GET /api/events/recent", a.recentEvents)
	mux.HandleFunc("GET /api/inventory", a.listInventory)
	mux.HandleFunc("GET /api/inventory/export", a.exportInventory)
	mux.HandleFunc("GET /api/inventory/{item_id}", a.getInventoryItem)
	mux.HandleFunc("GET /api/signals", a.listSignals)
	mux.HandleFunc("POST /api/signals/{signal_id}/acknowledge", a.acknowledgeSignal)
	mux.HandleFunc("POST /api/parse-packing-slip", a.parsePackingSlip)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := a.db.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: a.version, Database: dbStatus})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	u := userFromRequest(r)
	writeJSON(w, http.StatusOK, currentUserResponse{
		Email:           u.EmailPtr(),
		Name:            u.NamePtr(),
		DisplayName:     u.DisplayName(),
		IsAuthenticated: u.Email != "",
	})
}

func (a *API) createIntake(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !a.decode(w, r, &req) {
		return
	}
	ev, onHand, err := a.svc.Intake(r.Context(), req.StationID, req.BarcodeRaw, userFromRequest(r).EmailPtr())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev, onHand, nil))
}

func (a *API) createConsume(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !a.decode(w, r, &req) {
		return
	}
	ev, onHand, sig, err := a.svc.Consume(r.Context(), req.StationID, req.BarcodeRaw, userFromRequest(r).EmailPtr())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev, onHand, sig))
}

func (a *API) bulkIntake(w http.ResponseWriter, r *http.Request) {
	var req bulkIntakeRequest
	if !a.decode(w, r, &req) {
		return
	}
	items := make([]service.BulkItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.BulkItem{ItemID: it.ItemID, Qty: it.Qty})
	}
	res, err := a.svc.BulkIntake(r.Context(), req.StationID, items, userFromRequest(r).EmailPtr())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkResponse(res))
}

func (a *API) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	events, err := a.svc.RecentEvents(r.Context(), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := recentActivityResponse{Events: []scanEventResponse{}, Limit: limit}
	for _, ev := range events {
		// Живой остаток для ленты активности.
		inv, err := a.svc.Inventory(r.Context(), ev.ItemID)
		if err != nil {
			a.writeError(w, err)
			return
		}
		e := ev
		out.Events = append(out.Events, toEventResponse(&e, inv.OnHandQty, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listInventory(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.ListInventory(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := inventoryListResponse{Items: []inventoryItemResponse{}}
	for _, inv := range items {
		out.Items = append(out.Items, toInventoryResponse(inv, a.svc.ReorderPoint()))
	}
	out.TotalItems = len(out.Items)
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getInventoryItem(w http.ResponseWriter, r *http.Request) {
	inv, err := a.svc.Inventory(r.Context(), r.PathValue("item_id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(*inv, a.svc.ReorderPoint()))
}

func (a *API) listSignals(w http.ResponseWriter, r *http.Request) {
	status := signals.Status(r.URL.Query().Get("status"))
	switch status {
	case "", signals.StatusOpen, signals.StatusAcknowledged, signals.StatusFulfilled:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status filter", Code: "invalid_payload"})
		return
	}

	list, err := a.svc.ListSignals(r.Context(), status, queryInt(r, "limit", 50))
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := signalListResponse{Signals: []signalResponse{}}
	for _, s := range list {
		if s.Status == signals.StatusOpen {
			out.TotalOpen++
		}
		out.Signals = append(out.Signals, toSignalResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) acknowledgeSignal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("signal_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid signal id", Code: "invalid_payload"})
		return
	}
	sig, err := a.svc.Acknowledge(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSignalResponse(*sig))
}

func (a *API) parsePackingSlip(w http.ResponseWriter, r *http.Request) {
	if a.slips == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "vision endpoint is not configured", Code: "vision_unavailable"})
		return
	}

	if err := r.ParseMultipartForm(maxSlipImageBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "expected multipart form with a file field", Code: "invalid_payload"})
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field", Code: "invalid_payload"})
		return
	}
	defer func() { _ = file.Close() }()

	mediaType := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(mediaType, "image/") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file must be an image, got " + mediaType, Code: "invalid_payload"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSlipImageBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read file", Code: "invalid_payload"})
		return
	}
	if len(data) > maxSlipImageBytes {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image too large, maximum is 20MB", Code: "invalid_payload"})
		return
	}

	res, err := a.slips.ParseImage(r.Context(), data, mediaType)
	if err != nil {
		a.log.Error("packing slip parse failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to parse packing slip", Code: "vision_failed"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "invalid_payload"})
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_payload"})
		return false
	}
	return true
}

// writeError транслирует классификацию доменной ошибки в HTTP-статус.
// Всё неопознанное считаем отказом store (500, можно повторить позже).
func (a *API) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrMalformedBarcode):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "malformed_barcode"})
	case errors.Is(err, errs.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_quantity"})
	case errors.Is(err, errs.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "item_not_found"})
	case errors.Is(err, errs.ErrSignalNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "signal_not_found"})
	case errors.Is(err, errs.ErrDuplicateScan):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error(), Code: "duplicate_scan"})
	default:
		a.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage unavailable, try again later", Code: "storage_unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

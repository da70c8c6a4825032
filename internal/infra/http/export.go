package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
)

// exportInventory отдаёт текущие остатки одним xlsx-файлом.
func (a *API) exportInventory(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.ListInventory(r.Context(), queryInt(r, "limit", 1000))
	if err != nil {
		a.writeError(w, err)
		return
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	header := []interface{}{
		"item_id",
		"on_hand_qty",
		"intake_total",
		"consume_total",
		"last_activity_ts",
		"below_reorder_point",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		a.exportFailed(w, err)
		return
	}

	row := 2
	for _, inv := range items {
		excelRow := []interface{}{
			inv.ItemID,
			inv.OnHandQty,
			inv.IntakeTotal,
			inv.ConsumeTotal,
			inv.LastActivityTS.Format(time.RFC3339),
			inv.OnHandQty <= int64(a.svc.ReorderPoint()),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &excelRow); err != nil {
			a.exportFailed(w, err)
			return
		}
		row++
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="inventory.xlsx"`)
	if err := f.Write(w); err != nil {
		a.log.Error("inventory export failed", "err", err)
	}
}

// exportFailed — ошибка сборки xlsx: локальный сбой сериализации,
// а не отказ store, поэтому мимо доменной классификации.
func (a *API) exportFailed(w http.ResponseWriter, err error) {
	a.log.Error("inventory export failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to build export file", Code: "export_failed"})
}

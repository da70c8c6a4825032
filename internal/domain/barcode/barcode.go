package barcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/linesync/inventory/internal/domain/errs"
)

// Parsed — разобранный payload штрихкода.
type Parsed struct {
	ItemID string
	Qty    int
}

// Parse разбирает строку вида ITEM=<item_id>;QTY=<int>.
// Неизвестные ключи игнорируются, это не ошибка.
func Parse(raw string) (Parsed, error) {
	var (
		itemID  string
		qtyRaw  string
		hasItem bool
		hasQty  bool
	)

	for _, seg := range strings.Split(strings.TrimSpace(raw), ";") {
		key, val, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		switch key {
		case "ITEM":
			itemID = strings.TrimSpace(val)
			hasItem = true
		case "QTY":
			qtyRaw = strings.TrimSpace(val)
			hasQty = true
		}
	}

	if !hasItem || !hasQty {
		return Parsed{}, fmt.Errorf("%w: expected ITEM=<item_id>;QTY=<quantity>, got %q", errs.ErrMalformedBarcode, raw)
	}
	if itemID == "" {
		return Parsed{}, fmt.Errorf("%w: empty item id in %q", errs.ErrMalformedBarcode, raw)
	}

	qty, err := strconv.Atoi(qtyRaw)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: QTY is not an integer in %q", errs.ErrMalformedBarcode, raw)
	}
	if qty <= 0 {
		return Parsed{}, fmt.Errorf("%w: got %d", errs.ErrInvalidQuantity, qty)
	}

	return Parsed{ItemID: itemID, Qty: qty}, nil
}

// Synthetic собирает payload обратно — для bulk-intake, где строки
// приходят не со сканера, а из распознанной накладной.
func Synthetic(itemID string, qty int) string {
	return fmt.Sprintf("ITEM=%s;QTY=%d", itemID, qty)
}

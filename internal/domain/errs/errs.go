package errs

import "errors"

// Классификация ошибок домена: по ней HTTP-слой выбирает статус,
// а клиент отличает "поправь ввод" от "повтори позже" и "не найдено".
var (
	ErrMalformedBarcode   = errors.New("malformed barcode")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrItemNotFound       = errors.New("item not found")
	ErrSignalNotFound     = errors.New("signal not found")
	ErrDuplicateScan      = errors.New("duplicate scan rejected")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

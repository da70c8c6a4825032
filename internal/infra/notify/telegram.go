package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/linesync/inventory/internal/domain/signals"
)

// Telegram шлёт алерт в админ-чат при открытии сигнала пополнения.
// Оповещение best-effort: ошибка отправки логируется и не влияет
// на исход consume.
type Telegram struct {
	log    *slog.Logger
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(log *slog.Logger, token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Telegram{log: log, api: api, chatID: chatID}, nil
}

func (t *Telegram) SignalOpened(_ context.Context, s *signals.Signal) error {
	text := fmt.Sprintf(
		"Пора пополнить запас\n\nПозиция: %s\nОстаток: %d (порог %d)\nРекомендуемый заказ: %d",
		s.ItemID, s.TriggeredAtQty, s.ReorderPoint, s.ReorderQty,
	)
	if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.log.Debug("replenishment alert sent", "item_id", s.ItemID, "chat_id", t.chatID)
	return nil
}

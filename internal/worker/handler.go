package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/storefront-labs/storefront/internal/domain"
)

// AuditHandler records every order.placed event in the order_events table.
// Inserts are keyed by the event id, so redelivered messages are no-ops.
type AuditHandler struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAuditHandler(db *sql.DB, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		db:     db,
		logger: logger,
	}
}

func (h *AuditHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	if event.EventID == "" {
		return fmt.Errorf("order placed event for order %d has no event id", event.OrderID)
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO order_events (event_id, order_id, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.OrderID, string(payload))
	if err != nil {
		return fmt.Errorf("record order event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record order event: %w", err)
	}

	if rowsAffected == 0 {
		h.logger.Info("duplicate order event skipped", "event_id", event.EventID, "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("order event recorded",
		"event_id", event.EventID,
		"order_id", event.OrderID,
		"total_price", event.TotalPrice,
		"items", len(event.Items),
	)
	return nil
}

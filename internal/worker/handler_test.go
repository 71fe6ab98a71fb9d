package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestAuditHandler_Handle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("rejects malformed payload", func(t *testing.T) {
		handler := NewAuditHandler(nil, logger)

		if err := handler.Handle(context.Background(), []byte("{not json")); err == nil {
			t.Error("expected error for malformed payload")
		}
	})

	t.Run("rejects event without event id", func(t *testing.T) {
		handler := NewAuditHandler(nil, logger)

		payload := []byte(`{"order_id": 1, "total_price": "10.00", "items": []}`)
		if err := handler.Handle(context.Background(), payload); err == nil {
			t.Error("expected error for missing event id")
		}
	})
}

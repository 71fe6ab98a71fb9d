package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/storefront-labs/storefront/internal/domain"
	"github.com/storefront-labs/storefront/internal/messaging"
)

// OrderStore is the slice of the repository the HTTP handler needs.
type OrderStore interface {
	Place(ctx context.Context, items []domain.LineItemRequest) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
}

type Handler struct {
	store        OrderStore
	producer     *messaging.Producer
	logger       *slog.Logger
	ordersPlaced metric.Int64Counter
}

func NewHandler(store OrderStore, producer *messaging.Producer, logger *slog.Logger) (*Handler, error) {
	meter := otel.Meter("orders/handler")
	ordersPlaced, err := meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Number of successfully placed orders"),
	)
	if err != nil {
		return nil, err
	}

	return &Handler{
		store:        store,
		producer:     producer,
		logger:       logger,
		ordersPlaced: ordersPlaced,
	}, nil
}

type createOrderRequest struct {
	Items []domain.LineItemRequest `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.store.Place(r.Context(), req.Items)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	if h.producer != nil {
		event := domain.OrderPlacedEvent{
			EventID:    uuid.NewString(),
			OrderID:    order.ID,
			TotalPrice: order.TotalPrice,
			Timestamp:  time.Now().UTC(),
		}
		for _, item := range order.Items {
			event.Items = append(event.Items, domain.PlacedItem{
				ProductID: item.Product.ID,
				Quantity:  item.Quantity,
			})
		}
		key := strconv.FormatInt(order.ID, 10)
		if err := h.producer.Publish(r.Context(), key, event); err != nil {
			h.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
		}
	}

	h.ordersPlaced.Add(r.Context(), 1)
	h.logger.Info("order placed", "order_id", order.ID, "total_price", order.TotalPrice, "items", len(order.Items))
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// writeOrderError maps the placement error taxonomy onto response classes:
// validation and stock failures are the client's fault, unknown products are
// 404, everything else is a 500 with the detail kept out of the response.
func (h *Handler) writeOrderError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		stockErr      *domain.InsufficientStockError
	)

	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &notFoundErr):
		h.writeError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &stockErr):
		h.writeError(w, http.StatusBadRequest, stockErr.Error())
	default:
		h.logger.Error("failed to place order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	segmentio "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/storefront/internal/catalog"
	"github.com/storefront-labs/storefront/internal/domain"
	"github.com/storefront-labs/storefront/internal/messaging"
	"github.com/storefront-labs/storefront/internal/orders"
	"github.com/storefront-labs/storefront/internal/worker"
)

func newAPIMux(t *testing.T, db *sql.DB, producer *messaging.Producer) *http.ServeMux {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	products := catalog.NewProductRepository(db)
	productHandler := catalog.NewHandler(products, logger)
	orderHandler, err := orders.NewHandler(orders.NewOrderRepository(db, products), producer, logger)
	if err != nil {
		t.Fatalf("failed to create order handler: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", productHandler.HandleList)
	mux.HandleFunc("POST /products", productHandler.HandleCreate)
	mux.HandleFunc("POST /orders", orderHandler.HandleCreate)
	mux.HandleFunc("GET /orders/{id}", orderHandler.HandleGet)
	return mux
}

func seedProduct(ctx context.Context, t *testing.T, db *sql.DB, name, price string, stock int) int64 {
	t.Helper()

	repo := catalog.NewProductRepository(db)
	product := &domain.Product{
		Name:        name,
		Description: "seeded for testing",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
	}
	if err := repo.Create(ctx, product); err != nil {
		t.Fatalf("failed to seed product %s: %v", name, err)
	}
	return product.ID
}

func stockOf(ctx context.Context, t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()

	var stock int
	if err := db.QueryRowContext(ctx, "SELECT stock FROM products WHERE id = $1", productID).Scan(&stock); err != nil {
		t.Fatalf("failed to read stock for product %d: %v", productID, err)
	}
	return stock
}

func countRows(ctx context.Context, t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return count
}

func postOrder(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestProductLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux := newAPIMux(t, db, nil)

	t.Run("list is empty initially", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Errorf("expected empty array, got %s", body)
		}
	})

	t.Run("create then list", func(t *testing.T) {
		body := `{"name": "Laptop", "description": "A powerful laptop", "price": "999.99", "stock": 10}`
		req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var created domain.Product
		if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if created.ID == 0 {
			t.Error("expected assigned product id")
		}
		if !created.Price.Equal(decimal.RequireFromString("999.99")) {
			t.Errorf("expected price 999.99, got %s", created.Price)
		}

		req = httptest.NewRequest(http.MethodGet, "/products", nil)
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		var listed []domain.Product
		if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		if len(listed) != 1 || listed[0].Name != "Laptop" {
			t.Errorf("unexpected product list: %+v", listed)
		}
	})

	t.Run("invalid product is rejected and not persisted", func(t *testing.T) {
		before := countRows(ctx, t, db, "products")

		body := `{"name": "Bad", "description": "", "price": "-19.99", "stock": 100}`
		req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rec.Code)
		}
		if after := countRows(ctx, t, db, "products"); after != before {
			t.Errorf("expected %d products, got %d", before, after)
		}
	})
}

func TestOrderPlacement(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux := newAPIMux(t, db, nil)

	laptopID := seedProduct(ctx, t, db, "Laptop", "500.00", 10)
	headphonesID := seedProduct(ctx, t, db, "Headphones", "150.00", 5)

	orderBody := fmt.Sprintf(`{"items": [{"product_id": %d, "quantity": 2}, {"product_id": %d, "quantity": 1}]}`, laptopID, headphonesID)

	rec := postOrder(t, mux, orderBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var placed domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&placed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if placed.ID == 0 {
		t.Error("expected assigned order id")
	}
	if !placed.TotalPrice.Equal(decimal.RequireFromString("1150.00")) {
		t.Errorf("expected total_price 1150.00, got %s", placed.TotalPrice)
	}
	if placed.Status != domain.OrderStatusPending {
		t.Errorf("expected status pending, got %s", placed.Status)
	}
	if len(placed.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(placed.Items))
	}

	if got := stockOf(ctx, t, db, laptopID); got != 8 {
		t.Errorf("expected laptop stock 8, got %d", got)
	}
	if got := stockOf(ctx, t, db, headphonesID); got != 4 {
		t.Errorf("expected headphones stock 4, got %d", got)
	}

	t.Run("repeating the order decrements again", func(t *testing.T) {
		rec := postOrder(t, mux, orderBody)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		if got := stockOf(ctx, t, db, laptopID); got != 6 {
			t.Errorf("expected laptop stock 6, got %d", got)
		}
		if got := stockOf(ctx, t, db, headphonesID); got != 3 {
			t.Errorf("expected headphones stock 3, got %d", got)
		}
	})

	t.Run("placed order can be fetched", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/orders/%d", placed.ID), nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var fetched domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&fetched); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if fetched.ID != placed.ID {
			t.Errorf("expected order id %d, got %d", placed.ID, fetched.ID)
		}
		if !fetched.TotalPrice.Equal(placed.TotalPrice) {
			t.Errorf("expected total_price %s, got %s", placed.TotalPrice, fetched.TotalPrice)
		}
		if len(fetched.Items) != 2 {
			t.Errorf("expected 2 items, got %d", len(fetched.Items))
		}
	})

	t.Run("unknown order id returns 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders/999999", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestOrderPlacementFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux := newAPIMux(t, db, nil)

	phoneID := seedProduct(ctx, t, db, "Phone", "500.00", 1)
	limitedID := seedProduct(ctx, t, db, "Limited Edition", "50.00", 5)

	t.Run("insufficient stock rolls everything back", func(t *testing.T) {
		ordersBefore := countRows(ctx, t, db, "orders")

		rec := postOrder(t, mux, fmt.Sprintf(`{"items": [{"product_id": %d, "quantity": 2}]}`, phoneID))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "Phone") {
			t.Errorf("expected product name in message, got %s", rec.Body.String())
		}
		if got := stockOf(ctx, t, db, phoneID); got != 1 {
			t.Errorf("expected stock unchanged at 1, got %d", got)
		}
		if after := countRows(ctx, t, db, "orders"); after != ordersBefore {
			t.Errorf("expected %d orders, got %d", ordersBefore, after)
		}
	})

	t.Run("duplicate line items for one product count together", func(t *testing.T) {
		// 3 + 3 > 5 even though each line item alone fits.
		rec := postOrder(t, mux, fmt.Sprintf(`{"items": [{"product_id": %d, "quantity": 3}, {"product_id": %d, "quantity": 3}]}`, limitedID, limitedID))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := stockOf(ctx, t, db, limitedID); got != 5 {
			t.Errorf("expected stock unchanged at 5, got %d", got)
		}
	})

	t.Run("unknown product returns 404 and changes nothing", func(t *testing.T) {
		rec := postOrder(t, mux, fmt.Sprintf(`{"items": [{"product_id": %d, "quantity": 1}, {"product_id": 999999, "quantity": 1}]}`, phoneID))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := stockOf(ctx, t, db, phoneID); got != 1 {
			t.Errorf("expected stock unchanged at 1, got %d", got)
		}
	})

	t.Run("non-positive quantity returns 400", func(t *testing.T) {
		rec := postOrder(t, mux, fmt.Sprintf(`{"items": [{"product_id": %d, "quantity": 0}]}`, phoneID))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("empty item list returns 400", func(t *testing.T) {
		rec := postOrder(t, mux, `{"items": []}`)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestOrderAuditFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderPlaced)
	defer func() { _ = producer.Close() }()

	mux := newAPIMux(t, db, producer)

	widgetID := seedProduct(ctx, t, db, "Widget", "10.00", 100)

	rec := postOrder(t, mux, fmt.Sprintf(`{"items": [{"product_id": %d, "quantity": 3}]}`, widgetID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditHandler := worker.NewAuditHandler(db, logger)

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderPlaced, "order-audit-test",
		messaging.WithStartOffset(segmentio.FirstOffset),
	)
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	processed := make(chan struct{}, 1)
	go func() {
		_ = consumer.Consume(consumeCtx, func(ctx context.Context, payload []byte) error {
			if err := auditHandler.Handle(ctx, payload); err != nil {
				return err
			}
			processed <- struct{}{}
			return nil
		})
	}()

	select {
	case <-processed:
	case <-time.After(90 * time.Second):
		t.Fatal("timed out waiting for order event to be processed")
	}
	stopConsumer()

	if got := countRows(ctx, t, db, "order_events"); got != 1 {
		t.Fatalf("expected 1 order event, got %d", got)
	}

	t.Run("redelivered event is a no-op", func(t *testing.T) {
		var payload []byte
		if err := db.QueryRowContext(ctx, "SELECT payload FROM order_events LIMIT 1").Scan(&payload); err != nil {
			t.Fatalf("failed to read event payload: %v", err)
		}

		if err := auditHandler.Handle(ctx, payload); err != nil {
			t.Fatalf("redelivery failed: %v", err)
		}
		if got := countRows(ctx, t, db, "order_events"); got != 1 {
			t.Errorf("expected 1 order event after redelivery, got %d", got)
		}
	})
}

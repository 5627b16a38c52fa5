package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"tienda/internal/checkout"
	"tienda/internal/handlers"
	"tienda/internal/models"
	"tienda/internal/repositories"
	"tienda/internal/services"
	"tienda/pkg/mercadopago"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test_notification_secret"

// fixedRates always reports the same live rate.
type fixedRates struct {
	value decimal.Decimal
}

func (r fixedRates) Current(context.Context) models.ExchangeRate {
	return models.ExchangeRate{Value: r.value, Source: models.RateLive, FetchedAt: time.Now()}
}

func (r fixedRates) Refresh(ctx context.Context) models.ExchangeRate {
	return r.Current(ctx)
}

// fakeMercadoPago answers preference requests like the processor API.
type fakeMercadoPago struct {
	mu       sync.Mutex
	fail     bool
	requests []mercadopago.PreferenceRequest
	server   *httptest.Server
}

func newFakeMercadoPago() *fakeMercadoPago {
	f := &fakeMercadoPago{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/preferences" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req mercadopago.PreferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, req)
		if f.fail {
			http.Error(w, `{"message":"internal error"}`, http.StatusInternalServerError)
			return
		}
		id := fmt.Sprintf("pref-%d", len(f.requests))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":         id,
			"init_point": "https://mp.example/checkout?pref_id=" + id,
		})
	}))
	return f
}

func (f *fakeMercadoPago) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeMercadoPago) lastRequest() mercadopago.PreferenceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type testEnv struct {
	app    *fiber.App
	orders *repositories.GORMOrderRepository
	tokens *services.NotificationTokenService
	mp     *fakeMercadoPago
}

// setupApp sets up a Fiber app for testing with in-memory SQLite and all handlers/services.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	// A named in-memory database per test keeps tests isolated
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "failed to connect to in-memory database")
	require.NoError(t, repositories.AutoMigrate(db))

	catalog, err := repositories.NewStaticCatalogRepository([]models.Product{
		{
			ID:       "cable-usbc",
			Name:     "Cable USB-C",
			Category: "Accesorios Apple",
			PriceTiers: []models.PriceTier{
				models.NewPriceTier("1 unidad", decimal.RequireFromString("10.00")),
				models.NewPriceTier("10 unidades", decimal.RequireFromString("8.00")),
			},
		},
		{
			ID:         "perfume-1",
			Name:       "Perfume",
			Category:   "Perfumes",
			PriceTiers: []models.PriceTier{models.NewPriceTier("Unidad", decimal.RequireFromString("45.00"))},
		},
	})
	require.NoError(t, err)

	mp := newFakeMercadoPago()
	t.Cleanup(mp.server.Close)

	nop := zap.NewNop()
	rates := fixedRates{value: decimal.NewFromInt(1500)}
	orderRepo := repositories.NewGORMOrderRepository(db)
	tokens := services.NewNotificationTokenService(testSecret, time.Hour)
	mpClient := mercadopago.NewClient(mercadopago.Config{BaseURL: mp.server.URL, AccessToken: "TEST-token"}, mp.server.Client())

	orderService := services.NewOrderService(orderRepo, rates, nil, nop)
	paymentService := services.NewPaymentService(orderService, mpClient, tokens, "https://shop.example", "USD", nop)
	checkoutService := services.NewCheckoutService(
		repositories.NewInMemoryCheckoutSessionRepository(),
		catalog,
		rates,
		orderService,
		paymentService,
		checkout.NewDetailsValidator(time.UTC),
		nop,
	)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	handlers.NewCatalogHandler(services.NewCatalogService(catalog), nop).RegisterRoutes(apiV1)
	handlers.NewExchangeRateHandler(rates).RegisterRoutes(apiV1)
	handlers.NewOrderHandler(orderService, nop).RegisterRoutes(apiV1)
	handlers.NewPaymentHandler(paymentService, tokens, nop).RegisterRoutes(apiV1)
	handlers.NewCheckoutHandler(checkoutService, nop).RegisterRoutes(apiV1)

	return &testEnv{app: app, orders: orderRepo, tokens: tokens, mp: mp}
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// do sends a JSON request and decodes the JSON response into a map.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func orderBody() map[string]interface{} {
	return map[string]interface{}{
		"customer_name":   "Ana Pérez",
		"customer_dni":    "30111222",
		"customer_email":  "ana@example.com",
		"customer_phone":  "1155550000",
		"delivery_method": "carrier",
		"payment_method":  "electronic",
		"street":          "Av. Corrientes",
		"number":          "1234",
		"locality":        "CABA",
		"province":        "Buenos Aires",
		"postal_code":     "1043",
		"items": []map[string]interface{}{
			{"product_id": "cable-usbc", "name": "Cable USB-C", "quantity": 2, "unit_price": "10.00"},
			{"product_id": "perfume-1", "name": "Perfume", "quantity": 1, "unit_price": 45},
		},
	}
}

func decimalField(t *testing.T, body map[string]interface{}, key string) decimal.Decimal {
	t.Helper()
	raw, ok := body[key].(string)
	require.True(t, ok, "%s is %v", key, body[key])
	return decimal.RequireFromString(raw)
}

func (e *testEnv) createOrder(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	status, resp := e.do(t, http.MethodPost, "/api/v1/orders/", body)
	require.Equal(t, fiber.StatusCreated, status, resp)
	return resp["id"].(string)
}

func TestCreateAndGetOrder(t *testing.T) {
	env := setupApp(t)

	status, resp := env.do(t, http.MethodPost, "/api/v1/orders/", orderBody())
	require.Equal(t, fiber.StatusCreated, status, resp)
	assert.Equal(t, "pending", resp["status"])
	assert.True(t, decimalField(t, resp, "total").Equal(decimal.NewFromInt(65)))
	assert.True(t, decimalField(t, resp, "total_local").Equal(decimal.NewFromInt(97500)))

	id := resp["id"].(string)
	status, resp = env.do(t, http.MethodGet, "/api/v1/orders/"+id, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, id, resp["id"])
	items, ok := resp["line_items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "Cable USB-C", items[0].(map[string]interface{})["product_name"])

	status, _ = env.do(t, http.MethodGet, "/api/v1/orders/does-not-exist", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestCreateOrder_Validation(t *testing.T) {
	env := setupApp(t)

	body := orderBody()
	body["payment_method"] = "cash"
	body["customer_email"] = "not-an-email"
	status, resp := env.do(t, http.MethodPost, "/api/v1/orders/", body)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", resp["message"])
	fields := resp["errors"].(map[string]interface{})
	assert.Contains(t, fields, "customer_email")
	assert.Contains(t, fields, "payment_method")

	body = orderBody()
	body["items"] = []interface{}{}
	status, _ = env.do(t, http.MethodPost, "/api/v1/orders/", body)
	assert.Equal(t, fiber.StatusBadRequest, status)

	body = orderBody()
	body["total"] = "1.00"
	status, resp = env.do(t, http.MethodPost, "/api/v1/orders/", body)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, resp["errors"], "total")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	res, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
}

func TestUpdateOrderStatus(t *testing.T) {
	env := setupApp(t)
	id := env.createOrder(t, orderBody())
	path := "/api/v1/orders/" + id + "/status"

	status, resp := env.do(t, http.MethodPatch, path, map[string]string{"status": "bogus"})
	assert.Equal(t, fiber.StatusBadRequest, status, resp)

	status, resp = env.do(t, http.MethodPatch, path, map[string]string{"status": "paid-electronic", "payment_id": "pay-1"})
	require.Equal(t, fiber.StatusOK, status, resp)
	assert.Equal(t, "paid-electronic", resp["status"])

	// Re-applying the current status is a no-op
	status, resp = env.do(t, http.MethodPatch, path, map[string]string{"status": "paid-electronic"})
	assert.Equal(t, fiber.StatusOK, status, resp)

	status, resp = env.do(t, http.MethodPatch, path, map[string]string{"status": "pending"})
	assert.Equal(t, fiber.StatusConflict, status, resp)

	stored, err := env.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaidElectronic, stored.Status)
	assert.Equal(t, "pay-1", stored.PaymentID)

	status, _ = env.do(t, http.MethodPatch, "/api/v1/orders/missing/status", map[string]string{"status": "cancelled"})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestCreatePreference(t *testing.T) {
	env := setupApp(t)
	id := env.createOrder(t, orderBody())

	status, resp := env.do(t, http.MethodPost, "/api/v1/payments/preferences", map[string]string{"order_id": id})
	require.Equal(t, fiber.StatusCreated, status, resp)
	assert.Equal(t, "pref-1", resp["preference_id"])
	assert.Equal(t, "https://mp.example/checkout?pref_id=pref-1", resp["redirect_url"])

	sent := env.mp.lastRequest()
	assert.Equal(t, id, sent.ExternalReference)
	assert.Len(t, sent.Items, 2)
	assert.Equal(t, "https://shop.example/payment/success", sent.BackURLs.Success)
	assert.Contains(t, sent.NotificationURL, "https://shop.example/api/v1/payments/notifications/")

	stored, err := env.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "pref-1", stored.PreferenceID)
	assert.Equal(t, models.StatusPending, stored.Status)

	status, _ = env.do(t, http.MethodPost, "/api/v1/payments/preferences", map[string]string{"order_id": "missing"})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/api/v1/payments/preferences", map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreatePreference_Rejections(t *testing.T) {
	env := setupApp(t)

	cash := orderBody()
	cash["delivery_method"] = "pickup"
	cash["payment_method"] = "cash"
	cash["pickup_date"] = "2099-01-10"
	cash["pickup_time"] = "10:30"
	cashID := env.createOrder(t, cash)

	status, _ := env.do(t, http.MethodPost, "/api/v1/payments/preferences", map[string]string{"order_id": cashID})
	assert.Equal(t, fiber.StatusConflict, status)

	id := env.createOrder(t, orderBody())
	env.mp.setFail(true)
	status, resp := env.do(t, http.MethodPost, "/api/v1/payments/preferences", map[string]string{"order_id": id})
	assert.Equal(t, fiber.StatusBadGateway, status, resp)

	stored, err := env.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Empty(t, stored.PreferenceID)
}

func TestPaymentNotification(t *testing.T) {
	env := setupApp(t)
	id := env.createOrder(t, orderBody())
	token, err := env.tokens.Issue(id)
	require.NoError(t, err)
	path := "/api/v1/payments/notifications/" + token

	status, resp := env.do(t, http.MethodPost, path, map[string]string{"status": "in_process"})
	require.Equal(t, fiber.StatusOK, status, resp)
	assert.Equal(t, "pending", resp["status"])

	status, resp = env.do(t, http.MethodPost, path, map[string]string{"status": "approved", "payment_id": "9001"})
	require.Equal(t, fiber.StatusOK, status, resp)
	assert.Equal(t, "paid-electronic", resp["status"])

	// A late rejection cannot undo the payment
	status, _ = env.do(t, http.MethodPost, path, map[string]string{"status": "rejected"})
	assert.Equal(t, fiber.StatusConflict, status)

	stored, err := env.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaidElectronic, stored.Status)
	assert.Equal(t, "9001", stored.PaymentID)
}

func TestPaymentNotification_RejectsBadToken(t *testing.T) {
	env := setupApp(t)
	id := env.createOrder(t, orderBody())

	other := services.NewNotificationTokenService("another_secret", time.Hour)
	forged, err := other.Issue(id)
	require.NoError(t, err)

	for _, token := range []string{"garbage", forged} {
		status, resp := env.do(t, http.MethodPost, "/api/v1/payments/notifications/"+token, map[string]string{"status": "approved"})
		assert.Equal(t, fiber.StatusUnauthorized, status, resp)
	}

	stored, err := env.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestCatalogAndExchangeRate(t *testing.T) {
	env := setupApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var products []models.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	assert.Len(t, products, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products?category=Perfumes", nil)
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	products = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	require.Len(t, products, 1)
	assert.Equal(t, "perfume-1", products[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	var categories []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&categories))
	assert.Equal(t, []string{"Accesorios Apple", "Perfumes"}, categories)

	status, body := env.do(t, http.MethodGet, "/api/v1/products/cable-usbc", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Cable USB-C", body["name"])

	status, _ = env.do(t, http.MethodGet, "/api/v1/products/missing", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/exchange-rate", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "live", body["source"])
	assert.True(t, decimalField(t, body, "value").Equal(decimal.NewFromInt(1500)))
}

func TestCheckoutFlow_Cash(t *testing.T) {
	env := setupApp(t)

	status, session := env.do(t, http.MethodPost, "/api/v1/checkout/", nil)
	require.Equal(t, fiber.StatusCreated, status, session)
	assert.Equal(t, "product_summary", session["state"])
	base := "/api/v1/checkout/" + session["id"].(string)

	status, session = env.do(t, http.MethodPost, base+"/items", map[string]interface{}{"product_id": "cable-usbc", "quantity": 2})
	require.Equal(t, fiber.StatusOK, status, session)
	assert.True(t, decimalField(t, session, "subtotal_local").Equal(decimal.NewFromInt(30000)))

	status, _ = env.do(t, http.MethodPost, base+"/items", map[string]interface{}{"product_id": "missing", "quantity": 1})
	assert.Equal(t, fiber.StatusNotFound, status)

	// Paying before the details are in is out of order
	status, _ = env.do(t, http.MethodPost, base+"/pay", nil)
	assert.Equal(t, fiber.StatusConflict, status)

	details := map[string]string{
		"name":            "Ana Pérez",
		"dni":             "30111222",
		"email":           "ana@example.com",
		"phone":           "1155550000",
		"delivery_method": "pickup",
		"pickup_date":     "2099-01-10",
		"pickup_time":     "20:00",
	}
	status, session = env.do(t, http.MethodPut, base+"/details", details)
	require.Equal(t, fiber.StatusUnprocessableEntity, status, session)
	assert.Equal(t, "personal_and_delivery_details", session["state"])
	assert.Contains(t, session["errors"], "pickup_time")

	details["pickup_time"] = "10:30"
	status, session = env.do(t, http.MethodPut, base+"/details", details)
	require.Equal(t, fiber.StatusOK, status, session)
	assert.Equal(t, "payment_selection", session["state"])
	assert.Equal(t, "cash", session["payment_method"])
	assert.ElementsMatch(t, []interface{}{"cash", "electronic"}, session["payment_methods"])

	status, session = env.do(t, http.MethodPost, base+"/pay", nil)
	require.Equal(t, fiber.StatusOK, status, session)
	assert.Equal(t, "payment_success", session["state"])
	orderID := session["order_id"].(string)

	stored, err := env.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaidCash, stored.Status)
	assert.Equal(t, "Retiro: 2099-01-10 10:30", stored.Notes)
	assert.Len(t, stored.LineItems, 1)
}

func TestCheckoutFlow_Electronic(t *testing.T) {
	env := setupApp(t)

	_, session := env.do(t, http.MethodPost, "/api/v1/checkout/", nil)
	base := "/api/v1/checkout/" + session["id"].(string)
	env.do(t, http.MethodPost, base+"/items", map[string]interface{}{"product_id": "perfume-1", "quantity": 1})

	status, session := env.do(t, http.MethodPut, base+"/details", map[string]string{
		"name":            "Ana Pérez",
		"dni":             "30111222",
		"email":           "ana@example.com",
		"phone":           "1155550000",
		"delivery_method": "carrier",
		"street":          "Av. Corrientes",
		"number":          "1234",
		"locality":        "CABA",
		"province":        "Buenos Aires",
		"postal_code":     "1043",
	})
	require.Equal(t, fiber.StatusOK, status, session)
	assert.Equal(t, "electronic", session["payment_method"])

	status, _ = env.do(t, http.MethodPut, base+"/payment", map[string]string{"payment_method": "cash"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	env.mp.setFail(true)
	status, session = env.do(t, http.MethodPost, base+"/pay", nil)
	require.Equal(t, fiber.StatusBadGateway, status, session)
	assert.Equal(t, "payment_selection", session["state"])
	assert.NotEmpty(t, session["last_error"])

	env.mp.setFail(false)
	status, session = env.do(t, http.MethodPost, base+"/pay", map[string]string{"payment_method": "electronic"})
	require.Equal(t, fiber.StatusOK, status, session)
	assert.Equal(t, "redirected", session["state"])
	assert.Equal(t, "https://mp.example/checkout?pref_id=pref-2", session["redirect_url"])

	stored, err := env.orders.GetByID(context.Background(), session["order_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, "pref-2", stored.PreferenceID)
}

func TestCheckout_UnknownSession(t *testing.T) {
	env := setupApp(t)

	status, _ := env.do(t, http.MethodGet, "/api/v1/checkout/missing", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/api/v1/checkout/missing/back", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

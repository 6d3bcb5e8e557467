package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/mw"
	"snacktrack-backend/internal/service"
	"snacktrack-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestStore(t *testing.T) store.Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(model.All()...))
	return store.NewGormStore(gormDB)
}

func testOptions() RouterOptions {
	return RouterOptions{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTL:        time.Minute,
		Thresholds:      service.Thresholds{},
		Logger:          zerolog.Nop(),
	}
}

func setupRouter(t *testing.T, webpushOptions *webpush.Options) (*gin.Engine, store.Store) {
	s := newTestStore(t)
	return NewRouter(s, webpushOptions, nil, testOptions()), s
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) mw.ErrorResponse {
	var body mw.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestPutSubscription_InvalidBody(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodPut, "/api/subscriptions", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperr.CodeBadRequest, decodeError(t, w).Code)

	w = doJSON(t, router, http.MethodPut, "/api/subscriptions", map[string]any{"endpoint": "https://push.example.com/x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, apperr.CodeValidation, body.Code)
	assert.Contains(t, body.Message, "P256DH")
}

func TestSubscriptionLifecycle(t *testing.T) {
	router, _ := setupRouter(t, nil)
	endpoint := "https://push.example.com/send/abc%3D%3D"

	w := doJSON(t, router, http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint":            endpoint,
		"p256dh":              "key",
		"auth":                "auth",
		"subscribed_machines": []string{"m2", "m1", "m1", ""},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_machines":["m1","m2"]}`, w.Body.String())

	w = doJSON(t, router, http.MethodDelete, "/api/subscriptions", map[string]any{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		router, _ := setupRouter(t, nil)
		w := doJSON(t, router, http.MethodGet, "/api/vapid_public_key", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, apperr.CodeUnavailable, decodeError(t, w).Code)
	})

	t.Run("configured", func(t *testing.T) {
		router, _ := setupRouter(t, &webpush.Options{VAPIDPublicKey: "pub"})
		w := doJSON(t, router, http.MethodGet, "/api/vapid_public_key", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"public_key":"pub"}`, w.Body.String())
	})
}

func TestMachineHandlers(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/machines", map[string]any{"name": "Lobby", "location": "47.5,19.05", "rows": 2, "cols": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created service.MachineView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, model.StatusOffline, created.Status)
	assert.Len(t, created.Slots, 4)

	t.Run("validation error body", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/machines", map[string]any{"name": "", "location": "x", "rows": 1, "cols": 1})
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, apperr.CodeValidation, body.Code)
		assert.Equal(t, "/api/machines", body.Path)
		assert.NotEmpty(t, body.RequestID)
		assert.False(t, body.Timestamp.IsZero())
	})

	t.Run("not found body", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/machines/nope", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, apperr.CodeNotFound, body.Code)
		assert.Equal(t, "nope", body.Details["id"])
	})

	t.Run("slot patch accepts product field", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/products", map[string]any{"name": "Cola", "category": "Ital", "price": 150, "stock": 10})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var p model.Product
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))

		w = doJSON(t, router, http.MethodPatch, "/api/machines/"+created.ID+"/slots/B1",
			map[string]any{"product": p.ID, "quantity": 2, "capacity": 4, "price": 250.5})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var raw map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		slot := raw["slots"].([]any)[2].(map[string]any)
		assert.Equal(t, "B1", slot["slotCode"])
		assert.Equal(t, 250.5, slot["price"], "decimals are JSON numbers")
		assert.Equal(t, "Cola", slot["product"].(map[string]any)["name"])
		assert.Equal(t, float64(50), raw["fullness"])
	})

	t.Run("slot patch requires quantity and capacity", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPatch, "/api/machines/"+created.ID+"/slots/A1", map[string]any{"product": nil})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperr.CodeValidation, decodeError(t, w).Code)
	})

	t.Run("unknown slot", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPatch, "/api/machines/"+created.ID+"/slots/Q9", map[string]any{"quantity": 0, "capacity": 0})
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Q9", decodeError(t, w).Details["slotCode"])
	})

	t.Run("refill and delete", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/api/machines/"+created.ID+"/refill", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var refilled service.MachineView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refilled))
		assert.Equal(t, 100, refilled.Fullness)

		w = doJSON(t, router, http.MethodDelete, "/api/machines/"+created.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"machine deleted"}`, w.Body.String())

		w = doJSON(t, router, http.MethodDelete, "/api/machines/"+created.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestProductHandlers(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/products", map[string]any{"name": "Chips", "category": "Food", "price": 99.9, "stock": 3})
	require.Equal(t, http.StatusCreated, w.Code)
	var p model.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))

	w = doJSON(t, router, http.MethodPost, "/api/products", map[string]any{"name": "Chips", "category": "Toys"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPut, "/api/products/"+p.ID, map[string]any{"name": "Chips XL", "category": "Food", "price": 120, "stock": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Chips XL"`)

	w = doJSON(t, router, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = doJSON(t, router, http.MethodDelete, "/api/products/"+p.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, http.MethodDelete, "/api/products/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaleHandlers(t *testing.T) {
	router, _ := setupRouter(t, nil)

	t.Run("missing allProfit", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/sales", map[string]any{"date": "2024-05-01", "products": []any{}})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperr.CodeValidation, decodeError(t, w).Code)
	})

	t.Run("missing line quantity", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/sales", map[string]any{
			"date": "2024-05-01", "allProfit": 10,
			"products": []any{map[string]any{"productId": "p1", "productProfit": 10}},
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperr.CodeValidation, decodeError(t, w).Code)
	})

	t.Run("missing date", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/sales", map[string]any{"allProfit": 0})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperr.CodeValidation, decodeError(t, w).Code)
	})

	t.Run("stats are cached until a sale is recorded", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/sales/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
		assert.Contains(t, w.Body.String(), `"saleCount":0`)

		w = doJSON(t, router, http.MethodGet, "/api/sales/stats", nil)
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

		w = doJSON(t, router, http.MethodPost, "/api/sales", map[string]any{
			"machineId": "m1", "date": "2024-05-01T10:00:00Z", "allProfit": 450.5,
			"products": []any{map[string]any{"productId": "p1", "quantity": 3, "productProfit": 450.5}},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var created struct {
			Message string     `json:"message"`
			Sale    model.Sale `json:"sale"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.NotEmpty(t, created.Message)
		assert.NotEmpty(t, created.Sale.ID)
		assert.Contains(t, w.Body.String(), `"allProfit":450.5`)

		w = doJSON(t, router, http.MethodGet, "/api/sales/stats", nil)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
		assert.Contains(t, w.Body.String(), `"saleCount":1`)
		assert.Contains(t, w.Body.String(), `"totalUnits":3`)
	})

	t.Run("list filters by machine", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/sales?machineId=other", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}

type failingPingStore struct {
	store.Store
}

func (failingPingStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthEndpoints(t *testing.T) {
	router, s := setupRouter(t, nil)

	for _, path := range []string{"/", "/healthz", "/readyz", "/metrics"} {
		w := doJSON(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := doJSON(t, router, http.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperr.CodeRouteNotFound, decodeError(t, w).Code)

	down := NewRouter(failingPingStore{s}, nil, nil, testOptions())
	w = doJSON(t, down, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

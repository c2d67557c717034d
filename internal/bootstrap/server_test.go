package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/airways/api"
	"github.com/Domenick1991/airways/config"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/repository/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Storage.Driver = config.StorageMemory
	cfg.HTTP.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Booking.TaxRate = "0.12"
	cfg.Booking.NodeID = 1
	cfg.Booking.ReferenceAttempts = 3
	cfg.Telemetry.ServiceName = "airways-test"
	return cfg
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := memoryConfig()
	svc, err := NewServices(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return NewRouter(cfg, svc, logger.Nop())
}

func TestNewServices_RejectsBadTaxRate(t *testing.T) {
	cfg := memoryConfig()
	cfg.Booking.TaxRate = "twelve"
	_, err := NewServices(context.Background(), cfg, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "booking.tax_rate")
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_BookAndCancel(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/flights", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TAS")

	body, _ := json.Marshal(map[string]any{
		"flight_id":  memory.DemoFlightID,
		"class_id":   memory.DemoEconomyClassID,
		"seat_ids":   []int64{20, 21},
		"passengers": 2,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.UserIDHeader, "7")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Reference string `json:"reference"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Reference)

	// the same seats cannot be sold twice
	req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(body))
	req.Header.Set(api.UserIDHeader, "8")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/bookings/"+created.Reference, nil)
	req.Header.Set(api.UserIDHeader, "7")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/flights", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/pkg/logger"
)

// NewApp registers process-wide metrics, so the package builds a single app.
func TestNewApp_MemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", config.StoreDriverMemory)
	t.Setenv("HTTP_PORT", "18080")

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := NewApp(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Shutdown()) })

	h := a.Handler()
	assert.Equal(t, ":18080", a.httpServer.Addr)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry())
	adminToken, err := jwtManager.GenerateAccessToken("u-admin", "Admin", auth.RoleAdmin)
	require.NoError(t, err)
	userToken, err := jwtManager.GenerateAccessToken("u-1", "Jane", "user")
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"name":           "Wireless Mouse",
		"brand":          "Acme",
		"category":       "Electronics",
		"price":          25_99,
		"count_in_stock": 4,
	})
	require.NoError(t, err)

	post := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusForbidden, post(userToken).Code)

	rec = post(adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Price int64  `json:"price"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Data.ID)
	assert.Equal(t, "Wireless Mouse", created.Data.Name)
	assert.Equal(t, int64(25_99), created.Data.Price)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/"+created.Data.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

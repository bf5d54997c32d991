package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/pkg/response"
	"github.com/marataitester/tarot_go_server/internal/repository"
	"github.com/marataitester/tarot_go_server/internal/service"
	"github.com/marataitester/tarot_go_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testHandlerConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:      "test-secret",
			ExpireHours: 24,
		},
		Quota: config.QuotaConfig{
			DailyFreeLimit: 5,
			WindowHours:    24,
		},
		Payment: config.PaymentConfig{
			Currency: "XTR",
			Plans: []config.PaymentPlan{
				{Hours: 24, Stars: 10, Label: "24 часа"},
				{Hours: 72, Stars: 25, Label: "3 дня"},
			},
		},
	}
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func setupAccessHandler(t *testing.T) (*AccessHandler, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := testHandlerConfig()
	entRepo := repository.NewEntitlementRepository(db, cfg.Quota.DailyFreeLimit)
	accessService := service.NewAccessService(entRepo, nil, nil, cfg)
	handler := NewAccessHandler(accessService)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return handler, db, cleanup
}

func TestAccessHandler_Check_GET(t *testing.T) {
	handler, _, cleanup := setupAccessHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/check", handler.Check)

	req := httptest.NewRequest("GET", "/check?user_id=100", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["has_access"])
	assert.Equal(t, float64(5), data["attempts_left"])
}

func TestAccessHandler_Check_POST(t *testing.T) {
	handler, _, cleanup := setupAccessHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/check", handler.Check)

	w := postJSON(t, router, "/check", map[string]interface{}{"user_id": 100})

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)
}

func TestAccessHandler_Check_MissingUserID(t *testing.T) {
	handler, _, cleanup := setupAccessHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/check", handler.Check)

	req := httptest.NewRequest("GET", "/check", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAccessHandler_Check_NegativeUserID(t *testing.T) {
	handler, _, cleanup := setupAccessHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/check", handler.Check)

	w := postJSON(t, router, "/check", map[string]interface{}{"user_id": -5})

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAccessHandler_Check_PaidUser(t *testing.T) {
	handler, db, cleanup := setupAccessHandler(t)
	defer cleanup()

	paidUntil := time.Now().Add(12 * time.Hour).UTC()
	testutil.TestEntitlement(t, db, 100, testutil.WithFreeAttempts(0), testutil.WithPaidUntil(paidUntil))

	router := gin.New()
	router.GET("/check", handler.Check)

	req := httptest.NewRequest("GET", "/check?user_id=100", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["is_paid"])
	assert.Nil(t, data["attempts_left"])
	assert.NotEmpty(t, data["paid_until"])
}

func TestAccessHandler_Attempt(t *testing.T) {
	handler, _, cleanup := setupAccessHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/attempt", handler.Attempt)

	w := postJSON(t, router, "/attempt", map[string]interface{}{"user_id": 100})

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["allowed"])
	assert.Equal(t, float64(4), data["attempts_left"])
}

func TestAccessHandler_Attempt_QuotaExhausted(t *testing.T) {
	handler, _, cleanup := setupAccessHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/attempt", handler.Attempt)

	for i := 0; i < 5; i++ {
		w := postJSON(t, router, "/attempt", map[string]interface{}{"user_id": 100})
		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
	}

	// 第 6 次：HTTP 200 + 业务码配额耗尽，结果照样带在 data 里
	w := postJSON(t, router, "/attempt", map[string]interface{}{"user_id": 100})
	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeQuotaExceeded, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, data["allowed"])
	assert.Equal(t, float64(0), data["attempts_left"])
}

func TestAccessHandler_Attempt_StoreFailure(t *testing.T) {
	handler, db, _ := setupAccessHandler(t)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	router := gin.New()
	router.POST("/attempt", handler.Attempt)

	// 写路径的存储故障必须是 5xx，让客户端重试
	w := postJSON(t, router, "/attempt", map[string]interface{}{"user_id": 100})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

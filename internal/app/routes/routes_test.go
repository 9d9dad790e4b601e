package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sams-http-service/internal/app/realtime"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/infrastructure/config"
	"sams-http-service/internal/infrastructure/database/dbtest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testApp struct {
	router *gin.Engine
	site   models.JobSite
}

func newTestApp(t testing.TB) *testApp {
	t.Helper()
	db := dbtest.New(t)
	cfg := &config.Config{
		JWTSecretKey:        "test-secret",
		JWTTTL:              time.Hour,
		APIRateLimit:        1 << 30,
		LoginThrottleLimit:  3,
		LoginThrottleWindow: time.Minute,
	}

	site := models.JobSite{Name: "North Yard", VehicleCapacity: 10, VisitorCapacity: 10, TruckCapacity: 2, IsActive: true}
	require.NoError(t, db.Create(&site).Error)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.User{Username: "admin", Password: string(hash), Role: models.RoleAdmin, Status: "active"}).Error)
	require.NoError(t, db.Create(&models.User{
		Username: "gate1",
		Password: string(hash),
		Role:     models.RoleOperator,
		Status:   "active",
		Sites:    []models.JobSite{site},
	}).Error)

	c := container.NewServiceContainer(db, cfg, nil, zap.NewNop())
	t.Cleanup(c.Close)

	hub := realtime.NewHub(c.GetService("occupancy").(services.InterfaceOccupancyService), realtime.Config{Heartbeat: time.Minute}, nil)
	hub.SubscribeTo(c.Bus())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	return &testApp{router: SetupRouter(c, hub), site: site}
}

func (a *testApp) do(t testing.TB, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (a *testApp) login(t testing.TB, username string) string {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": "secret-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result services.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return result.Token
}

func TestPublicRoutes(t *testing.T) {
	app := newTestApp(t)

	w, env := app.do(t, http.MethodGet, "/api/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, code.ErrSuccess, env.Code)

	w, env = app.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "memory", health["cache"])

	w, env = app.do(t, http.MethodGet, fmt.Sprintf("/api/entries/active/%d", app.site.ID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, code.ErrTokenInvalid, env.Code)
}

func TestEntryLifecycle(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "gate1")

	w, env := app.do(t, http.MethodPost, "/api/entries", token, gin.H{
		"site_id": app.site.ID,
		"type":    "vehicle",
		"data":    gin.H{"license_plate": "ab-123 ", "driver_name": "Sam"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entry models.Entry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, models.EntryStatusActive, entry.Status)
	assert.Equal(t, "AB-123", entry.Identifier)

	occupancyPath := fmt.Sprintf("/api/occupancy/%d", app.site.ID)
	vehicles := func() int64 {
		w, env := app.do(t, http.MethodGet, occupancyPath, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var occ services.SiteOccupancy
		require.NoError(t, json.Unmarshal(env.Data, &occ))
		return occ.Vehicles.Count
	}
	assert.EqualValues(t, 1, vehicles())
	assert.EqualValues(t, 1, vehicles())

	w, env = app.do(t, http.MethodGet, fmt.Sprintf("/api/entries/active/%d", app.site.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":1`)

	w, env = app.do(t, http.MethodPost, "/api/entries/exit", token, gin.H{"entry_id": entry.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, models.EntryStatusExited, entry.Status)

	// 离场事件清除了缓存
	assert.EqualValues(t, 0, vehicles())

	w, env = app.do(t, http.MethodPost, "/api/entries/exit", token, gin.H{"entry_id": entry.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, code.ErrAlreadyExited, env.Code)

	w, env = app.do(t, http.MethodGet, fmt.Sprintf("/api/entries/%d", entry.ID), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = app.do(t, http.MethodPost, "/api/entries", token, gin.H{"site_id": app.site.ID, "type": "vehicle", "data": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, code.ErrValidation, env.Code)
}

func TestEmergencyRoutes(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin")
	operator := app.login(t, "gate1")

	w, env := app.do(t, http.MethodPost, "/api/emergency/activate", operator, gin.H{"reason": "drill"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, code.ErrAccessDenied, env.Code)

	w, env = app.do(t, http.MethodPost, "/api/emergency/activate", admin, gin.H{"site_id": app.site.ID, "reason": "gas leak"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var mode models.EmergencyMode
	require.NoError(t, json.Unmarshal(env.Data, &mode))

	w, env = app.do(t, http.MethodPost, "/api/entries", operator, gin.H{
		"site_id": app.site.ID,
		"type":    "visitor",
		"data":    gin.H{"name": "Jo"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, code.ErrEmergencyActive, env.Code)

	w, _ = app.do(t, http.MethodGet, "/api/emergency/active", operator, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = app.do(t, http.MethodPost, "/api/emergency/bulk-exit", operator, gin.H{"emergency_id": mode.ID, "site_id": app.site.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result services.BulkExitResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.EqualValues(t, 0, result.Affected)

	w, _ = app.do(t, http.MethodPost, fmt.Sprintf("/api/emergency/%d/deactivate", mode.ID), operator, gin.H{"summary": "all clear"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = app.do(t, http.MethodGet, fmt.Sprintf("/api/emergency/%d", mode.ID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &mode))
	assert.False(t, mode.IsActive)
	assert.Len(t, mode.Actions, 3)

	w, env = app.do(t, http.MethodPost, fmt.Sprintf("/api/emergency/%d/deactivate", mode.ID), admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, code.ErrEmergencyNotFound, env.Code)
}

func TestAlertRoutesAndLoginThrottle(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin")
	operator := app.login(t, "gate1")

	// 成功的登录也计入尝试次数
	for i := 0; i < 2; i++ {
		w, env := app.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "gate1", "password": "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, code.ErrUserPasswordIncorrect, env.Code)
	}
	w, env := app.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "gate1", "password": "secret-pass"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, code.ErrTooManyRequests, env.Code)

	w, _ = app.do(t, http.MethodPost, "/api/alerts/trigger-checks", operator, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = app.do(t, http.MethodPost, "/api/alerts/trigger-checks", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = app.do(t, http.MethodGet, "/api/alerts?type=account_locked", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []models.Alert `json:"items"`
		Total int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, models.SeverityHigh, page.Items[0].Severity)

	w, env = app.do(t, http.MethodPost, fmt.Sprintf("/api/alerts/%d/acknowledge", page.Items[0].ID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var acked models.Alert
	require.NoError(t, json.Unmarshal(env.Data, &acked))
	assert.True(t, acked.Acknowledged)

	w, env = app.do(t, http.MethodPost, "/api/alerts/999/acknowledge", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, code.ErrAlertNotFound, env.Code)
}

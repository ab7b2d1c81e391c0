package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryckox/syntagma/internal/metrics"
	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator map[string]*service.Claims

func (s stubValidator) ValidateToken(token string) (*service.Claims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("token is malformed")
}

var tokens = stubValidator{
	"admin-token": {UserID: 1, Username: "admin", Role: model.RoleAdmin},
	"user-token":  {UserID: 2, Username: "author", Role: model.RoleUser},
}

func perform(r http.Handler, method, path, token string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(AuthHeader, BearerPrefix+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_Required(t *testing.T) {
	auth := NewAuthMiddleware(tokens)
	r := gin.New()
	r.GET("/me", auth.Required(), func(c *gin.Context) {
		actor := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "ua": actor.UserAgent})
	})

	w := perform(r, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "未提供认证信息")

	w = perform(r, http.MethodGet, "/me", "", AuthHeader, "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "认证格式错误")

	w = perform(r, http.MethodGet, "/me", "forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodGet, "/me", "user-token", "User-Agent", "probe/1.0")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":2,"ua":"probe/1.0"}`, w.Body.String())
}

func TestAuthMiddleware_Optional(t *testing.T) {
	auth := NewAuthMiddleware(tokens)
	r := gin.New()
	r.GET("/rulesets", auth.Optional(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"anonymous": GetActor(c) == nil, "user_id": GetUserID(c)})
	})

	assert.JSONEq(t, `{"anonymous":true,"user_id":0}`, perform(r, http.MethodGet, "/rulesets", "").Body.String())
	assert.JSONEq(t, `{"anonymous":true,"user_id":0}`, perform(r, http.MethodGet, "/rulesets", "forged").Body.String())
	assert.JSONEq(t, `{"anonymous":false,"user_id":1}`, perform(r, http.MethodGet, "/rulesets", "admin-token").Body.String())
}

func TestRequireAdmin(t *testing.T) {
	auth := NewAuthMiddleware(tokens)
	r := gin.New()
	r.GET("/admin", auth.Required(), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bare", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/admin", "user-token").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/admin", "admin-token").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/bare", "").Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := perform(r, http.MethodGet, "/", "")
	generated := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	given := uuid.NewString()
	w = perform(r, http.MethodGet, "/", "", RequestIDHeader, given)
	assert.Equal(t, given, w.Header().Get(RequestIDHeader))

	w = perform(r, http.MethodGet, "/", "", RequestIDHeader, "<script>")
	assert.NotEqual(t, "<script>", w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"http://localhost:5173"}
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/api/types", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodOptions, "/api/types", "", "Origin", "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	w = perform(r, http.MethodGet, "/api/types", "", "Origin", "http://evil.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaputt") })

	w := perform(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"内部错误"}`, w.Body.String())
}

func TestMetricsAndLogger(t *testing.T) {
	r := gin.New()
	r.Use(Metrics(), Logger())
	r.GET("/api/rulesets/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/rulesets/:id", "404"))
	perform(r, http.MethodGet, "/api/rulesets/17", "")
	perform(r, http.MethodGet, "/api/rulesets/18", "")
	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/rulesets/:id", "404"))
	assert.Equal(t, 2.0, after-before)

	unmatched := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	perform(r, http.MethodGet, "/does/not/exist", "")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))-unmatched)
}

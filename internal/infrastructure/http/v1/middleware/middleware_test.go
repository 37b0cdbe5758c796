package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clientregistry/internal/core/apperror"
	appctx "clientregistry/internal/core/context"
	"clientregistry/internal/infrastructure/storage/postgres"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error) {
	args := m.Called(ctx, key, userID, operation, requestHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*postgres.IdempotencyReplay), args.Error(1)
}

func (m *mockStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return m.Called(ctx, key, statusCode, contentType, body).Error(0)
}

func (m *mockStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return m.Called(ctx, key, statusCode, contentType, body).Error(0)
}

func (m *mockStore) ReleaseKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type codeRecorder struct {
	codes []string
}

func (r *codeRecorder) ObserveError(code string) { r.codes = append(r.codes, code) }

type validatorFunc func(string) (*appctx.UserContext, error)

func (f validatorFunc) ValidateToken(token string) (*appctx.UserContext, error) { return f(token) }

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_AppError(t *testing.T) {
	rec := &codeRecorder{}
	r := gin.New()
	r.Use(Trace(), ErrorHandler(rec))
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(apperror.NewDuplicateTaxID("11144477735"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, apperror.CodeDuplicateTaxID, body["code"])
	assert.Equal(t, []string{apperror.CodeDuplicateTaxID}, rec.codes)
}

func TestErrorHandler_UnknownErrorHidesCause(t *testing.T) {
	r := gin.New()
	r.Use(Trace(), ErrorHandler(nil))
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("pq: password authentication failed"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	body := decodeBody(t, w)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.Equal(t, "req-1", body["details"].(map[string]any)["request_id"])
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
}

func TestErrorHandler_DeadlineExceeded(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(nil))
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(context.DeadlineExceeded)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(nil), Recovery())
	r.GET("/x", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestTrace_GeneratesIDs(t *testing.T) {
	r := gin.New()
	r.Use(Trace())
	var traceID string
	r.GET("/x", func(c *gin.Context) {
		traceID = appctx.GetTraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, traceID, w.Header().Get(HeaderTraceID))
}

type httpObs struct {
	route  string
	status int
}

func (o *httpObs) ObserveHTTP(_, route string, status int, _ time.Duration) {
	o.route, o.status = route, status
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	obs := &httpObs{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/clients/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/clients/42", nil))
	assert.Equal(t, "/clients/:id", obs.route)
	assert.Equal(t, http.StatusOK, obs.status)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, "unmatched", obs.route)
	assert.Equal(t, http.StatusNotFound, obs.status)
}

func authRouter(v JWTValidator, roles ...string) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler(nil), Auth(v), RequireRole(roles...))
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, appctx.GetUserID(c.Request.Context()))
	})
	return r
}

func TestAuth(t *testing.T) {
	v := validatorFunc(func(token string) (*appctx.UserContext, error) {
		switch token {
		case "editor":
			return &appctx.UserContext{UserID: "u1", Roles: []string{"registry.editor"}}, nil
		case "reader":
			return &appctx.UserContext{UserID: "u2", Roles: []string{"registry.reader"}}, nil
		}
		return nil, errors.New("bad token")
	})
	r := authRouter(v, "registry.editor")

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"missing role", "Bearer reader", http.StatusForbidden},
		{"allowed", "Bearer editor", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func idempotentRouter(store IdempotencyStore, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler(nil), Idempotency(store))
	r.POST("/clients", handler)
	return r
}

func postWithKey(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader(body))
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_CompletesSuccess(t *testing.T) {
	store := &mockStore{}
	store.On("AcquireKey", mock.Anything, "key-1", "", "POST /clients", mock.AnythingOfType("string")).Return(nil, nil)
	store.On("CompleteKey", mock.Anything, "key-1", http.StatusCreated, "application/json; charset=utf-8", []byte(`{"id":7}`)).Return(nil)

	r := idempotentRouter(store, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"id": 7})
	})

	w := postWithKey(r, `{"kind":"INDIVIDUAL"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	store.AssertExpectations(t)
}

func TestIdempotency_Replays(t *testing.T) {
	store := &mockStore{}
	store.On("AcquireKey", mock.Anything, "key-1", "", "POST /clients", mock.Anything).
		Return(&postgres.IdempotencyReplay{StatusCode: http.StatusCreated, ContentType: "application/json", Body: []byte(`{"id":7}`)}, nil)

	called := false
	r := idempotentRouter(store, func(c *gin.Context) { called = true })

	w := postWithKey(r, `{}`)
	assert.False(t, called)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":7}`, w.Body.String())
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
}

func TestIdempotency_FailsClientErrors(t *testing.T) {
	store := &mockStore{}
	store.On("AcquireKey", mock.Anything, "key-1", "", "POST /clients", mock.Anything).Return(nil, nil)
	store.On("FailKey", mock.Anything, "key-1", http.StatusConflict, mock.Anything, mock.MatchedBy(func(b []byte) bool {
		return strings.Contains(string(b), apperror.CodeDuplicateEmail)
	})).Return(nil)

	r := idempotentRouter(store, func(c *gin.Context) {
		_ = c.Error(apperror.NewDuplicateEmail("a@x.com"))
		c.Abort()
	})

	w := postWithKey(r, `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	store.AssertExpectations(t)
}

func TestIdempotency_ReleasesOnServerError(t *testing.T) {
	store := &mockStore{}
	store.On("AcquireKey", mock.Anything, "key-1", "", "POST /clients", mock.Anything).Return(nil, nil)
	store.On("ReleaseKey", mock.Anything, "key-1").Return(nil)

	r := idempotentRouter(store, func(c *gin.Context) {
		_ = c.Error(errors.New("db down"))
	})

	w := postWithKey(r, `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "FailKey", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIdempotency_SkipsWithoutKey(t *testing.T) {
	store := &mockStore{}
	r := idempotentRouter(store, func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusNoContent, w.Code)
	store.AssertNotCalled(t, "AcquireKey", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/reposition-api/internal/models"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{UserID: "user-1"}, nil
}

type stubAuthorizer struct {
	selected string
}

func (s *stubAuthorizer) Authorize(ctx context.Context, selected, userID string) (*models.Membership, error) {
	s.selected = selected
	switch {
	case selected == "":
		return nil, appErrors.ErrNoOrganization
	case userID != "user-1":
		return nil, appErrors.ErrForbidden
	}
	role := models.MemberRoleStaff
	if selected == "org-admin" {
		role = models.MemberRoleAdmin
	}
	return &models.Membership{OrganizationID: selected, UserID: userID, Role: role}, nil
}

type observedRequest struct {
	method, path string
	status       int
}

type recordingObserver struct {
	seen []observedRequest
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.seen = append(r.seen, observedRequest{method, path, status})
}

func guardedRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(stubValidator{}), Organization(&stubAuthorizer{})}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, OrganizationID(c))
	})
	r.GET("/guarded", handlers...)
	return r
}

func call(r http.Handler, token, org string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if org != "" {
		req.Header.Set(OrganizationHeader, org)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingAndMalformedTokens(t *testing.T) {
	r := guardedRouter()

	assert.Equal(t, http.StatusUnauthorized, call(r, "", "org-1").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Basic abc", "org-1").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer bad", "org-1").Code)
}

func TestOrganizationResolvesSelection(t *testing.T) {
	r := guardedRouter()

	w := call(r, "Bearer good", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "NO_ORGANIZATION_SELECTED")

	w = call(r, "Bearer good", "org-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "org-1", w.Body.String())
}

func TestOrganizationWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Organization(&stubAuthorizer{})(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, c.IsAborted())
}

func TestRequireMemberRoles(t *testing.T) {
	r := guardedRouter(RequireMemberRoles(models.MemberRoleOwner, models.MemberRoleAdmin))

	assert.Equal(t, http.StatusForbidden, call(r, "Bearer good", "org-1").Code)
	assert.Equal(t, http.StatusOK, call(r, "Bearer good", "org-admin").Code)
}

func TestRateLimiterBucketsPerKey(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("org-1"))
	assert.True(t, limiter.Allow("org-1"))
	assert.False(t, limiter.Allow("org-1"))
	assert.True(t, limiter.Allow("org-2"))

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("org-1"))

	now = now.Add(10 * time.Minute)
	limiter.Allow("org-3")
	assert.Len(t, limiter.buckets, 1)
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, 1)
	for i := 0; i < 50; i++ {
		require.True(t, limiter.Allow("org-1"))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := guardedRouter(RateLimit(NewRateLimiter(0.001, 1)))

	assert.Equal(t, http.StatusOK, call(r, "Bearer good", "org-1").Code)
	w := call(r, "Bearer good", "org-1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, http.StatusOK, call(r, "Bearer good", "org-2").Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/classes/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/classes/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, observer.seen, 2)
	assert.Equal(t, observedRequest{http.MethodGet, "/classes/:id", http.StatusNoContent}, observer.seen[0])
	assert.Equal(t, "unmatched", observer.seen[1].path)
	assert.Equal(t, http.StatusNotFound, observer.seen[1].status)
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/noah-isme/reposition-api/internal/middleware"
	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository/memstore"
	"github.com/noah-isme/reposition-api/internal/service"
)

const staffUser = "staff-user"

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type testAPI struct {
	router *gin.Engine
	tokens *service.TokenService
}

func buildAPI(t *testing.T, perSecond float64) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	memstore.SeedDemo(store, time.Now())
	store.PutMembership(models.Membership{OrganizationID: memstore.DemoOrganizationID, UserID: staffUser, Role: models.MemberRoleStaff})

	validate := validator.New()
	logger := zap.NewNop()
	metrics := service.NewMetricsService()
	capacity := service.NewCapacityManager(false)
	ledger := service.NewCreditLedger(store, metrics, validate, logger)
	roster := service.NewRosterService(store, capacity, nil, time.Minute, validate, logger)
	attendance := service.NewAttendanceService(store, ledger, roster, validate, logger)
	enrollments := service.NewEnrollmentService(store, capacity, attendance, ledger, roster, metrics, validate, logger)
	displacement := service.NewDisplacementResolver(store, capacity, attendance, ledger, roster, metrics, validate, logger)
	reconciler := service.NewCreditReconciler(store, metrics, validate, logger, service.ReconcilerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reconciler.Start(ctx)
	t.Cleanup(reconciler.Stop)
	tokens := service.NewTokenService("test-secret")
	scope := service.NewOrganizationScope(store, validate, logger)

	router := gin.New()
	router.Use(internalmiddleware.Metrics(metrics))
	Routes{
		Classes:   NewClassHandler(enrollments, roster, displacement),
		Attendees: NewAttendeeHandler(attendance),
		Credits:   NewCreditHandler(ledger, reconciler, service.NewStatementService(store, validate, logger)),
	}.Register(router.Group("/api/v1"),
		internalmiddleware.JWT(tokens),
		internalmiddleware.Organization(scope),
		internalmiddleware.RateLimit(internalmiddleware.NewRateLimiter(perSecond, 100)),
	)
	return &testAPI{router: router, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path, user, org string, body interface{}) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, "/api/v1"+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := a.tokens.IssueToken(user, "", time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if org != "" {
		req.Header.Set(internalmiddleware.OrganizationHeader, org)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env apiEnvelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestAPIRequiresIdentityAndOrganization(t *testing.T) {
	api := buildAPI(t, 0)
	path := "/classes/" + memstore.DemoClassID + "/attendees"

	w, _ := api.do(t, http.MethodGet, path, "", memstore.DemoOrganizationID, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := api.do(t, http.MethodGet, path, memstore.DemoUserID, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NO_ORGANIZATION_SELECTED", env.Error.Code)

	w, _ = api.do(t, http.MethodGet, path, "stranger", memstore.DemoOrganizationID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodGet, path, memstore.DemoUserID, memstore.DemoOrganizationID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIEnrollmentDisplacementFlow(t *testing.T) {
	api := buildAPI(t, 0)
	admin, org := memstore.DemoUserID, memstore.DemoOrganizationID
	ana, bruno, carla := memstore.DemoStudentIDs[0], memstore.DemoStudentIDs[1], memstore.DemoStudentIDs[2]
	classPath := "/classes/" + memstore.DemoClassID

	w, _ := api.do(t, http.MethodPost, "/students/"+carla+"/credits", admin, org, map[string]interface{}{"amount": 1, "reason": "trial pack"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := api.do(t, http.MethodPost, classPath+"/enrollments", admin, org, map[string]interface{}{"student_id": ana})
	require.Equal(t, http.StatusCreated, w.Code)
	var accepted struct {
		Attendee models.ClassAttendee `json:"attendee"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &accepted))

	w, _ = api.do(t, http.MethodPost, classPath+"/enrollments", admin, org, map[string]interface{}{"student_id": bruno})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = api.do(t, http.MethodPost, classPath+"/enrollments", admin, org, map[string]interface{}{"student_id": carla, "use_credit": true})
	require.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CLASS_FULL", env.Error.Code)
	var full struct {
		Occupants []models.ClassAttendee `json:"occupants"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &full))
	require.Len(t, full.Occupants, 2)
	assert.Equal(t, ana, full.Occupants[0].StudentID)

	w, _ = api.do(t, http.MethodPost, classPath+"/displacements", admin, org, map[string]interface{}{
		"incumbent_attendee_id": accepted.Attendee.ID,
		"student_id":            carla,
		"use_credit":            true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = api.do(t, http.MethodGet, "/students/"+carla+"/credits", admin, org, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"student_id":"`+carla+`","balance":0}`, string(env.Data))

	w, env = api.do(t, http.MethodGet, classPath+"/attendees", admin, org, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roster struct {
		Attendees []models.ClassAttendee `json:"attendees"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	require.Len(t, roster.Attendees, 2)
	assert.Equal(t, bruno, roster.Attendees[0].StudentID)
	assert.Equal(t, carla, roster.Attendees[1].StudentID)

	w, _ = api.do(t, http.MethodPatch, "/attendees/"+roster.Attendees[1].ID+"/status", admin, org, map[string]string{"status": "PRESENT"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodDelete, "/attendees/"+roster.Attendees[1].ID, admin, org, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, env = api.do(t, http.MethodDelete, "/attendees/"+roster.Attendees[1].ID, admin, org, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = api.do(t, http.MethodGet, "/students/"+carla+"/credits/transactions?page_size=2", admin, org, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.CreditTransaction
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, models.CreditKindRefund, entries[0].Kind)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/"+carla+"/credits/statement?format=pdf", nil)
	token, err := api.tokens.IssueToken(admin, "", time.Minute)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(internalmiddleware.OrganizationHeader, org)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestAPIStaffCannotAdjustCredits(t *testing.T) {
	api := buildAPI(t, 0)
	student := memstore.DemoStudentIDs[0]

	w, _ := api.do(t, http.MethodPost, "/students/"+student+"/credits", staffUser, memstore.DemoOrganizationID, map[string]interface{}{"amount": 5, "reason": "self-service"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodGet, "/students/"+student+"/credits", staffUser, memstore.DemoOrganizationID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRateLimitsPerOrganization(t *testing.T) {
	api := buildAPI(t, 0.001)
	path := "/students/" + memstore.DemoStudentIDs[0] + "/credits"

	limited := false
	for i := 0; i < 101; i++ {
		w, env := api.do(t, http.MethodGet, path, memstore.DemoUserID, memstore.DemoOrganizationID, nil)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			assert.Equal(t, "RATE_LIMITED", env.Error.Code)
			break
		}
	}
	assert.True(t, limited)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/catering/internal/authorization"
	"github.com/smallbiznis/catering/internal/notification/domain"
	"github.com/smallbiznis/catering/internal/ratelimit"
	"github.com/smallbiznis/catering/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fakeNotificationService struct {
	listReq     domain.ListRequest
	listResp    domain.ListResponse
	listErr     error
	markReq     domain.MarkReadRequest
	markResp    domain.MarkReadResult
	settingsReq domain.ListSettingsRequest
	upsertReq   domain.UpsertSettingRequest
	runJob      string
	runErr      error
}

func (f *fakeNotificationService) RunAggregation(_ context.Context, jobName string) (domain.RunResult, error) {
	f.runJob = jobName
	if f.runErr != nil {
		return domain.RunResult{}, f.runErr
	}
	return domain.RunResult{Job: jobName, Inserted: 3}, nil
}

func (f *fakeNotificationService) List(_ context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	f.listReq = req
	return f.listResp, f.listErr
}

func (f *fakeNotificationService) MarkRead(_ context.Context, req domain.MarkReadRequest) (domain.MarkReadResult, error) {
	f.markReq = req
	return f.markResp, nil
}

func (f *fakeNotificationService) ListSettings(_ context.Context, req domain.ListSettingsRequest) ([]domain.RoleNotificationSetting, error) {
	f.settingsReq = req
	return []domain.RoleNotificationSetting{}, nil
}

func (f *fakeNotificationService) UpsertSetting(_ context.Context, req domain.UpsertSettingRequest) (domain.RoleNotificationSetting, error) {
	f.upsertReq = req
	return domain.RoleNotificationSetting{RoleID: req.RoleID, EventType: req.EventType, InappEnabled: req.InappEnabled}, nil
}

type roleAuthorizer struct {
	adminRole int64
}

func (a roleAuthorizer) Authorize(_ context.Context, subject authorization.Subject, _ string, _ string) error {
	for _, role := range subject.RoleIDs {
		if role == a.adminRole {
			return nil
		}
	}
	return authorization.ErrForbidden
}

type fakeLimiter struct {
	allowed bool
}

func (f fakeLimiter) Enabled() bool { return true }

func (f fakeLimiter) AllowUser(context.Context, string) (*ratelimit.RateLimitResult, error) {
	return &ratelimit.RateLimitResult{Allowed: f.allowed, Limit: 20, RetryAfter: 1500 * time.Millisecond}, nil
}

func newTestServer(t *testing.T, svc *fakeNotificationService, limiter deliveryLimiter) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	s := &Server{
		engine:          engine,
		log:             zap.NewNop(),
		verifier:        NewTokenVerifier(testSecret, "catering-auth"),
		notificationSvc: svc,
		authzSvc:        roleAuthorizer{adminRole: 1},
		limiter:         limiter,
	}
	s.registerAPIRoutes()
	s.registerAdminRoutes()
	return s
}

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	if claims.Issuer == "" {
		claims.Issuer = "catering-auth"
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func doRequest(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&payload).Encode(body)
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestListNotificationsRequiresBearer(t *testing.T) {
	s := newTestServer(t, &fakeNotificationService{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := signToken(t, "other-secret", Claims{UserID: "10"})
	rec = doRequest(s, http.MethodGet, "/api/notifications", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestListNotificationsPassesCallerAndQuery(t *testing.T) {
	svc := &fakeNotificationService{
		listResp: domain.ListResponse{
			PageInfo: pagination.PageInfo{Limit: 5, Offset: 10, HasMore: true},
			Events:   []domain.EventView{{Unread: true}},
		},
	}
	s := newTestServer(t, svc, nil)
	token := signToken(t, testSecret, Claims{UserID: "10", RoleIDs: []int64{3, 4}})

	rec := doRequest(s, http.MethodGet, "/api/notifications?status=open&type=meal_entry.pending_approval&unread_only=true&limit=5&offset=10", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, domain.ListRequest{
		Caller:     domain.Caller{UserID: "10", RoleIDs: []int64{3, 4}},
		Status:     "open",
		Type:       "meal_entry.pending_approval",
		UnreadOnly: true,
		Limit:      5,
		Offset:     10,
	}, svc.listReq)

	var body struct {
		Data     []domain.EventView  `json:"data"`
		PageInfo pagination.PageInfo `json:"page_info"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.True(t, body.PageInfo.HasMore)
}

func TestListNotificationsUsesSubjectWhenUserClaimMissing(t *testing.T) {
	svc := &fakeNotificationService{}
	s := newTestServer(t, svc, nil)
	token := signToken(t, testSecret, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}})

	rec := doRequest(s, http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", svc.listReq.Caller.UserID)
}

func TestListNotificationsRejectsMalformedLimit(t *testing.T) {
	s := newTestServer(t, &fakeNotificationService{}, nil)
	token := signToken(t, testSecret, Claims{UserID: "10"})

	rec := doRequest(s, http.MethodGet, "/api/notifications?limit=abc", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_limit", payload.Errors[0].Code)
	assert.Equal(t, "limit", payload.Errors[0].Field)
}

func TestListNotificationsMapsServiceErrors(t *testing.T) {
	svc := &fakeNotificationService{listErr: domain.ErrInvalidStatus}
	s := newTestServer(t, svc, nil)
	token := signToken(t, testSecret, Claims{UserID: "10"})

	rec := doRequest(s, http.MethodGet, "/api/notifications?status=archived", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status", decodeError(t, rec).Errors[0].Field)

	svc.listErr = errors.New("list events: dial tcp 10.0.0.1:5432: connection refused")
	rec = doRequest(s, http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "5432")
}

func TestMarkNotificationsRead(t *testing.T) {
	svc := &fakeNotificationService{
		markResp: domain.MarkReadResult{
			UpdatedCount: 1,
			Failures:     []domain.MarkReadFailure{{EventID: "x", Code: domain.MarkReadCodeInvalidID}},
		},
	}
	s := newTestServer(t, svc, nil)
	token := signToken(t, testSecret, Claims{UserID: "10"})

	rec := doRequest(s, http.MethodPost, "/api/notifications/read", token, gin.H{"event_ids": []string{"1", "x"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MarkReadRequest{UserID: "10", EventIDs: []string{"1", "x"}}, svc.markReq)

	var result domain.MarkReadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, domain.MarkReadCodeInvalidID, result.Failures[0].Code)
}

func TestAdminRoutesRequirePermission(t *testing.T) {
	svc := &fakeNotificationService{}
	s := newTestServer(t, svc, nil)
	token := signToken(t, testSecret, Claims{UserID: "10", RoleIDs: []int64{3}})

	rec := doRequest(s, http.MethodGet, "/admin/notification-settings", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(s, http.MethodPost, "/admin/notification-jobs/meal_entry_pending_approval/run", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, svc.runJob)
}

func TestUpsertNotificationSetting(t *testing.T) {
	svc := &fakeNotificationService{}
	s := newTestServer(t, svc, nil)
	token := signToken(t, testSecret, Claims{UserID: "99", RoleIDs: []int64{1}})

	rec := doRequest(s, http.MethodPut, "/admin/notification-settings", token, gin.H{
		"role_id":       3,
		"event_type":    "meal_entry.pending_approval",
		"inapp_enabled": true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email_enabled", decodeError(t, rec).Errors[0].Field)

	rec = doRequest(s, http.MethodPut, "/admin/notification-settings", token, gin.H{
		"role_id":       3,
		"event_type":    "meal_entry.pending_approval",
		"inapp_enabled": true,
		"email_enabled": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.UpsertSettingRequest{
		ActorID:      "99",
		RoleID:       3,
		EventType:    "meal_entry.pending_approval",
		InappEnabled: true,
	}, svc.upsertReq)
}

func TestListNotificationSettingsPassesFilter(t *testing.T) {
	svc := &fakeNotificationService{}
	s := newTestServer(t, svc, nil)
	token := signToken(t, testSecret, Claims{UserID: "99", RoleIDs: []int64{1}})

	rec := doRequest(s, http.MethodGet, "/admin/notification-settings?event_type=meal_entry.pending_approval", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "meal_entry.pending_approval", svc.settingsReq.EventType)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestRunNotificationJob(t *testing.T) {
	svc := &fakeNotificationService{}
	s := newTestServer(t, svc, nil)
	token := signToken(t, testSecret, Claims{UserID: "99", RoleIDs: []int64{1}})

	rec := doRequest(s, http.MethodPost, "/admin/notification-jobs/meal_entry_pending_approval/run", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "meal_entry_pending_approval", svc.runJob)

	svc.runErr = domain.ErrInvalidJob
	rec = doRequest(s, http.MethodPost, "/admin/notification-jobs/nope/run", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "job", decodeError(t, rec).Errors[0].Field)
}

func TestDeliveryRateLimitDenies(t *testing.T) {
	svc := &fakeNotificationService{}
	s := newTestServer(t, svc, fakeLimiter{allowed: false})
	token := signToken(t, testSecret, Claims{UserID: "10"})

	rec := doRequest(s, http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, rateLimitReasonUserRate, rec.Header().Get("X-Rate-Limited-Reason"))
	assert.Empty(t, svc.listReq.Caller.UserID)
}

func TestTokenVerifier(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, "catering-auth")

	expired := signToken(t, testSecret, Claims{
		UserID:           "10",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	_, err := verifier.Verify(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	wrongIssuer := signToken(t, testSecret, Claims{
		UserID:           "10",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	_, err = verifier.Verify(wrongIssuer)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	_, err = NewTokenVerifier("", "").Verify(wrongIssuer)
	assert.ErrorIs(t, err, errMissingSecret)
}

package router_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"certintake/internal/config"
	"certintake/internal/domain"
	"certintake/internal/handler"
	"certintake/internal/router"
	"certintake/internal/service"
	"certintake/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T) (*gin.Engine, service.AuthService, *mocks.MockDocumentReconciler) {
	t.Helper()
	authSvc := service.NewAuthService(config.JWTConfig{Secret: "router-test-secret", Issuer: "certintake"})
	rec := new(mocks.MockDocumentReconciler)
	intake := new(mocks.MockIntakeService)
	r := router.Setup(authSvc,
		handler.NewHealthHandler(nil),
		handler.NewShipmentHandler(rec),
		handler.NewIntakeHandler(intake),
		[]string{"http://localhost:3000"},
	)
	return r, authSvc, rec
}

func TestRouter_HealthIsPublic(t *testing.T) {
	r, _, _ := setup(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_APIRequiresToken(t *testing.T) {
	r, _, _ := setup(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/shipments/S100/documents", http.NoBody)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_ServiceRoleCannotUpload(t *testing.T) {
	r, authSvc, rec := setup(t)
	token, err := authSvc.IssueToken("mailer", service.RoleService, time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/shipments/S100/documents", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	rec.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_OperatorListsDocuments(t *testing.T) {
	r, authSvc, rec := setup(t)
	token, err := authSvc.IssueToken("ops@example.com", service.RoleOperator, time.Minute)
	require.NoError(t, err)
	rec.On("Snapshot", mock.Anything, "S100").Return(&domain.ShipmentSnapshot{ShipmentID: "S100"}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/shipments/S100/documents", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	rec.AssertExpectations(t)
}

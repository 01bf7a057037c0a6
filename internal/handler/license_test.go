package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mirovand/licensehub-api/internal/config"
	"github.com/mirovand/licensehub-api/internal/handler/dto"
	"github.com/mirovand/licensehub-api/internal/service"
	"github.com/mirovand/licensehub-api/internal/storage/filestore"
	"github.com/mirovand/licensehub-api/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := filestore.NewLicenseRepository(filepath.Join(t.TempDir(), "licenses.json"), zap.NewNop())
	require.NoError(t, err)

	pricing := config.PricingConfig{MonthlyCents: 500, AnnualCents: 4800, LifetimeCents: 9900}
	svc := service.NewLicenseService(repo, pricing, "LicenseHub Desktop", zap.NewNop())
	handler := NewLicenseHandler(svc, tasks.NewDispatcher(nil, zap.NewNop()), zap.NewNop())

	router := gin.New()
	router.POST("/licenses", handler.Create)
	router.POST("/licenses/validate", handler.Validate)
	router.POST("/licenses/:key/revoke", handler.Revoke)
	router.DELETE("/licenses/:key", handler.Delete)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createLicense(t *testing.T, router *gin.Engine) dto.LicenseResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/licenses", dto.IssueLicenseRequest{
		Email:       "a@x.com",
		ProductName: "My Extension",
		Plan:        "monthly",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created dto.LicenseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created
}

func TestCreateLicenseEndpoint(t *testing.T) {
	router := newTestRouter(t)

	created := createLicense(t, router)
	assert.NotEmpty(t, created.Key)
	assert.Equal(t, "my-extension", created.ProductID)
	assert.True(t, created.ExpiresAt.After(time.Now()))
}

func TestCreateLicenseRejectsBadBody(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/licenses", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLicenseRejectsUnknownPlan(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/licenses", dto.IssueLicenseRequest{
		Email:       "a@x.com",
		ProductName: "My Extension",
		Plan:        "weekly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	router := newTestRouter(t)
	created := createLicense(t, router)

	rec := doJSON(t, router, http.MethodPost, "/licenses/validate", dto.ValidateLicenseRequest{
		LicenseKey:  created.Key,
		ProductName: "My Extension",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ValidateLicenseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsValid)
	assert.Equal(t, "a@x.com", resp.Email)
	assert.Equal(t, "my-extension", resp.ProductID)
	require.NotNil(t, resp.ExpiresAt)
}

func TestValidateEndpointInvalidStaysHTTPOK(t *testing.T) {
	router := newTestRouter(t)
	created := createLicense(t, router)

	// An invalid license is a 200 with a structured verdict, never an error
	// status: the client needs the reason code.
	rec := doJSON(t, router, http.MethodPost, "/licenses/validate", dto.ValidateLicenseRequest{
		LicenseKey:  created.Key,
		ProductName: "Other Product",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ValidateLicenseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsValid)
	assert.Equal(t, service.ReasonProductMismatch, resp.Reason)
	assert.Empty(t, resp.Email)
}

func TestRevokeEndpoint(t *testing.T) {
	router := newTestRouter(t)
	created := createLicense(t, router)

	rec := doJSON(t, router, http.MethodPost, "/licenses/"+created.Key+"/revoke", dto.RevokeLicenseRequest{
		Reason: "chargeback",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var revoked dto.LicenseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &revoked))
	assert.Equal(t, "chargeback", revoked.RevokeReason)

	rec = doJSON(t, router, http.MethodPost, "/licenses/validate", dto.ValidateLicenseRequest{
		LicenseKey:  created.Key,
		ProductName: "My Extension",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.ValidateLicenseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsValid)
	assert.Equal(t, service.ReasonRevoked, resp.Reason)
}

func TestRevokeEndpointUnknownKey(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/licenses/LH-0000-0000-0000-0000/revoke", dto.RevokeLicenseRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	router := newTestRouter(t)
	created := createLicense(t, router)

	rec := doJSON(t, router, http.MethodDelete, "/licenses/"+created.Key, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/licenses/validate", dto.ValidateLicenseRequest{
		LicenseKey:  created.Key,
		ProductName: "My Extension",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.ValidateLicenseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, service.ReasonUnknownKey, resp.Reason)
}

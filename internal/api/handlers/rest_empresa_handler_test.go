package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/DLXSERVEIS/Facturacion/internal/api/handlers"
	"github.com/DLXSERVEIS/Facturacion/internal/models"
)

func setupEmpresaRouter(svc *MockCompanyService, stor *MockS3Storage, client *MockAsynqClient) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := handlers.NewRestEmpresaHandler(svc, stor, client)
	handlers.RegisterRestEmpresaRoutes(r, handler)
	return r
}

func TestRestEmpresaHandler_Get(t *testing.T) {
	mockSvc := new(MockCompanyService)
	mockStor := new(MockS3Storage)
	r := setupEmpresaRouter(mockSvc, mockStor, new(MockAsynqClient))

	cfg := models.DefaultCompanyConfig()
	mockSvc.On("Get", mock.Anything).Return(cfg, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/empresa", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	empresa := resp["empresa"].(map[string]interface{})
	assert.Equal(t, "Tu Empresa S.L.", empresa["nombre"])
	assert.NotContains(t, resp, "logoUrl", "no logo means no presigned URL")
	mockStor.AssertNotCalled(t, "GeneratePresignedGetURL")
}

func TestRestEmpresaHandler_Get_IncludesLogoURL(t *testing.T) {
	mockSvc := new(MockCompanyService)
	mockStor := new(MockS3Storage)
	r := setupEmpresaRouter(mockSvc, mockStor, new(MockAsynqClient))

	cfg := models.DefaultCompanyConfig()
	cfg.Logo = "logo/abc_logo.png"
	mockSvc.On("Get", mock.Anything).Return(cfg, nil)
	mockStor.On("GeneratePresignedGetURL", mock.Anything, "logo/abc_logo.png").
		Return("https://s3.example.com/logo", nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/empresa", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://s3.example.com/logo", resp["logoUrl"])
}

func TestRestEmpresaHandler_Update_Partial(t *testing.T) {
	mockSvc := new(MockCompanyService)
	r := setupEmpresaRouter(mockSvc, new(MockS3Storage), new(MockAsynqClient))

	updated := models.DefaultCompanyConfig()
	updated.Name = "Facturas Garcia S.L."
	mockSvc.On("Update", mock.Anything, mock.MatchedBy(func(u models.CompanyConfigUpdate) bool {
		return u.Name != nil && *u.Name == "Facturas Garcia S.L." && u.TaxID == nil && u.Logo == nil
	})).Return(updated, nil)

	body := []byte(`{"nombre":"Facturas Garcia S.L."}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/v1/empresa", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.CompanyConfig
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Facturas Garcia S.L.", resp.Name)
	mockSvc.AssertExpectations(t)
}

func TestRestEmpresaHandler_Update_IgnoresLogoField(t *testing.T) {
	mockSvc := new(MockCompanyService)
	r := setupEmpresaRouter(mockSvc, new(MockS3Storage), new(MockAsynqClient))

	mockSvc.On("Update", mock.Anything, mock.MatchedBy(func(u models.CompanyConfigUpdate) bool {
		return u.Logo == nil
	})).Return(models.DefaultCompanyConfig(), nil)

	// A logo key smuggled into the general update payload is dropped.
	body := []byte(`{"logo":"logo/evil.png"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/v1/empresa", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestRestEmpresaHandler_SetLogo(t *testing.T) {
	mockSvc := new(MockCompanyService)
	mockStor := new(MockS3Storage)
	mockClient := new(MockAsynqClient)
	r := setupEmpresaRouter(mockSvc, mockStor, mockClient)

	previous := models.DefaultCompanyConfig()
	previous.Logo = "logo/old_logo.png"
	mockSvc.On("Get", mock.Anything).Return(previous, nil)
	mockStor.On("GeneratePresignedPutURL", mock.Anything, "logo", "logo.png", "image/png").
		Return("https://s3.example.com/upload", "logo/new_logo.png", nil)
	mockSvc.On("SetLogo", mock.Anything, "logo/new_logo.png").Return(nil)
	// One enqueue for logo processing, one for old blob cleanup.
	mockClient.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Twice()

	body := []byte(`{"nombre":"logo.png","tipo":"image/png"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/v1/empresa/logo", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://s3.example.com/upload", resp["uploadUrl"])
	assert.Equal(t, "logo/new_logo.png", resp["logo"])
	mockSvc.AssertExpectations(t)
	mockStor.AssertExpectations(t)
	mockClient.AssertExpectations(t)
}

func TestRestEmpresaHandler_SetLogo_MissingFilename(t *testing.T) {
	mockSvc := new(MockCompanyService)
	r := setupEmpresaRouter(mockSvc, new(MockS3Storage), new(MockAsynqClient))

	body := []byte(`{"tipo":"image/png"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/v1/empresa/logo", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "SetLogo")
}

package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DLXSERVEIS/Facturacion/internal/models"
	"github.com/DLXSERVEIS/Facturacion/internal/services"
	"github.com/DLXSERVEIS/Facturacion/internal/storage"
	"github.com/DLXSERVEIS/Facturacion/internal/tasks"
)

const logoPrefix = "logo"

// RestEmpresaHandler handles REST requests for the company configuration
// singleton.
type RestEmpresaHandler struct {
	companyService services.ICompanyService
	storageService storage.IS3Storage
	taskClient     IAsynqClient
}

// NewRestEmpresaHandler creates a new RestEmpresaHandler.
func NewRestEmpresaHandler(companyService services.ICompanyService, storageService storage.IS3Storage, taskClient IAsynqClient) *RestEmpresaHandler {
	return &RestEmpresaHandler{
		companyService: companyService,
		storageService: storageService,
		taskClient:     taskClient,
	}
}

// GetEmpresa handles GET /v1/empresa. When a logo is set, a short-lived
// download URL is included alongside the stored key.
func (h *RestEmpresaHandler) GetEmpresa(c *gin.Context) {
	cfg, err := h.companyService.Get(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve company config"})
		return
	}

	resp := gin.H{"empresa": cfg}
	if cfg.Logo != "" {
		logoURL, err := h.storageService.GeneratePresignedGetURL(c.Request.Context(), cfg.Logo)
		if err != nil {
			log.Printf("Warning: failed to presign logo URL for %s: %v", cfg.Logo, err)
		} else {
			resp["logoUrl"] = logoURL
		}
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateEmpresa handles PUT /v1/empresa. Absent fields keep their value; an
// empty partial changes nothing.
func (h *RestEmpresaHandler) UpdateEmpresa(c *gin.Context) {
	var upd struct {
		Name       *string `json:"nombre"`
		TaxID      *string `json:"nif"`
		Address    *string `json:"direccion"`
		PostalCode *string `json:"codigoPostal"`
		City       *string `json:"ciudad"`
		Phone      *string `json:"telefono"`
		Email      *string `json:"email"`
	}
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	// The logo is deliberately absent from this payload; it only changes
	// through the upload flow.
	cfg, err := h.companyService.Update(c.Request.Context(), models.CompanyConfigUpdate{
		Name:       upd.Name,
		TaxID:      upd.TaxID,
		Address:    upd.Address,
		PostalCode: upd.PostalCode,
		City:       upd.City,
		Phone:      upd.Phone,
		Email:      upd.Email,
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update company config"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// SetLogo handles PUT /v1/empresa/logo. The browser uploads the image to the
// returned pre-signed URL; a background task then normalizes oversized
// images. The previous logo blob, if any, is cleaned up.
func (h *RestEmpresaHandler) SetLogo(c *gin.Context) {
	var body struct {
		Filename    string `json:"nombre"`
		ContentType string `json:"tipo"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nombre is required"})
		return
	}
	if body.ContentType == "" {
		body.ContentType = "image/png"
	}
	ctx := c.Request.Context()

	previous, err := h.companyService.Get(ctx)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve company config"})
		return
	}

	uploadURL, objectKey, err := h.storageService.GeneratePresignedPutURL(ctx, logoPrefix, body.Filename, body.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload"})
		return
	}

	if err := h.companyService.SetLogo(ctx, objectKey); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store logo"})
		return
	}

	if task, err := tasks.NewLogoProcessTask(objectKey); err != nil {
		log.Printf("Warning: failed to build logo task for %s: %v", objectKey, err)
	} else if _, err := h.taskClient.EnqueueContext(ctx, task); err != nil {
		log.Printf("Warning: failed to enqueue logo task for %s: %v", objectKey, err)
	}

	if previous.Logo != "" && previous.Logo != objectKey {
		if task, err := tasks.NewAttachmentCleanupTask(previous.Logo); err == nil {
			if _, err := h.taskClient.EnqueueContext(ctx, task); err != nil {
				log.Printf("Warning: failed to enqueue cleanup of old logo %s: %v", previous.Logo, err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"uploadUrl": uploadURL,
		"logo":      objectKey,
	})
}

// RegisterRestEmpresaRoutes mounts the company config routes.
func RegisterRestEmpresaRoutes(r *gin.Engine, handler *RestEmpresaHandler) {
	r.GET("/v1/empresa", handler.GetEmpresa)
	r.PUT("/v1/empresa", handler.UpdateEmpresa)
	r.PUT("/v1/empresa/logo", handler.SetLogo)
}

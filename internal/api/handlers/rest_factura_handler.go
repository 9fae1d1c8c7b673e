package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/DLXSERVEIS/Facturacion/internal/models"
	"github.com/DLXSERVEIS/Facturacion/internal/services"
	"github.com/DLXSERVEIS/Facturacion/internal/storage"
	"github.com/DLXSERVEIS/Facturacion/internal/tasks"
)

// IAsynqClient abstracts the asynq client for enqueueing background tasks.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

const attachmentPrefix = "adjuntos"

// RestFacturaHandler handles REST requests for invoices.
type RestFacturaHandler struct {
	invoiceService services.IInvoiceService
	storageService storage.IS3Storage
	taskClient     IAsynqClient
}

// NewRestFacturaHandler creates a new RestFacturaHandler.
func NewRestFacturaHandler(invoiceService services.IInvoiceService, storageService storage.IS3Storage, taskClient IAsynqClient) *RestFacturaHandler {
	return &RestFacturaHandler{
		invoiceService: invoiceService,
		storageService: storageService,
		taskClient:     taskClient,
	}
}

// today returns the current UTC date as a YYYY-MM-DD string, the format used
// for every invoice date.
func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// annotateStatus overwrites the serialized estado with the display status, so
// a pending invoice past its due date reads vencida without being rewritten.
func annotateStatus(inv *models.Invoice, day string) {
	inv.Status = inv.EffectiveStatus(day)
}

// ListFacturas handles GET /v1/facturas?tipo=venta&q=...
func (h *RestFacturaHandler) ListFacturas(c *gin.Context) {
	invoiceType := c.Query("tipo")
	if invoiceType != "" && invoiceType != models.InvoiceSale && invoiceType != models.InvoicePurchase {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tipo must be venta or compra"})
		return
	}

	invoices, err := h.invoiceService.List(c.Request.Context(), invoiceType, c.Query("q"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invoices"})
		return
	}

	day := today()
	for i := range invoices {
		annotateStatus(&invoices[i], day)
	}
	c.JSON(http.StatusOK, invoices)
}

// GetFacturaByID handles GET /v1/facturas/:id
func (h *RestFacturaHandler) GetFacturaByID(c *gin.Context) {
	invoice, err := h.invoiceService.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Factura not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve invoice"})
		}
		return
	}
	annotateStatus(invoice, today())
	c.JSON(http.StatusOK, invoice)
}

// CreateFactura handles POST /v1/facturas. Line totals and the invoice totals
// are always recomputed server-side; whatever amounts the client sent are
// ignored.
func (h *RestFacturaHandler) CreateFactura(c *gin.Context) {
	var invoice models.Invoice
	if err := c.ShouldBindJSON(&invoice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if invoice.Type != models.InvoiceSale && invoice.Type != models.InvoicePurchase {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tipo must be venta or compra"})
		return
	}
	if invoice.Number == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "numero is required"})
		return
	}
	if invoice.Status != "" && invoice.Status != models.StatusPending && invoice.Status != models.StatusPaid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "estado must be pendiente or pagada"})
		return
	}
	// pagada and fechaPago always travel together.
	if invoice.Status == models.StatusPaid && invoice.PaymentDate == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fechaPago is required for estado pagada"})
		return
	}
	if invoice.Status != models.StatusPaid {
		invoice.PaymentDate = nil
	}
	// Attachments only exist through the upload flow.
	invoice.Attachment = nil

	lines, totals := services.ComputeTotals(invoice.Items)
	invoice.Items = lines
	invoice.Subtotal = totals.Subtotal
	invoice.Tax = totals.Tax
	invoice.Total = totals.Total

	if err := h.invoiceService.Add(c.Request.Context(), &invoice); err != nil {
		if errors.Is(err, services.ErrDuplicateID) {
			c.JSON(http.StatusConflict, gin.H{"error": "Factura id already exists"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invoice"})
		}
		return
	}
	annotateStatus(&invoice, today())
	c.JSON(http.StatusCreated, invoice)
}

// UpdateFactura handles PUT /v1/facturas/:id. Absent fields keep their stored
// value; tipo is not part of the payload and can never change.
func (h *RestFacturaHandler) UpdateFactura(c *gin.Context) {
	var upd models.InvoiceUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.invoiceService.Update(c.Request.Context(), c.Param("id"), upd); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update invoice"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteFactura handles DELETE /v1/facturas/:id. The attachment blob, if any,
// is cleaned up by a background task after the record is gone.
func (h *RestFacturaHandler) DeleteFactura(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	invoice, err := h.invoiceService.FindByID(ctx, id)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete invoice"})
		return
	}

	if err := h.invoiceService.Delete(ctx, id); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete invoice"})
		return
	}

	if invoice != nil && invoice.Attachment != nil {
		h.enqueueAttachmentCleanup(ctx, invoice.Attachment.ObjectKey)
	}
	c.Status(http.StatusNoContent)
}

// MarkPaid handles POST /v1/facturas/:id/pago. The payment date defaults to
// today when the body omits it. Unknown id is a no-op, like every other write.
func (h *RestFacturaHandler) MarkPaid(c *gin.Context) {
	var body struct {
		PaymentDate string `json:"fechaPago"`
	}
	// An empty or absent body is fine; it just means "paid today".
	_ = c.ShouldBindJSON(&body)
	if body.PaymentDate == "" {
		body.PaymentDate = today()
	}

	if err := h.invoiceService.MarkPaid(c.Request.Context(), c.Param("id"), body.PaymentDate); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark invoice paid"})
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkPending handles DELETE /v1/facturas/:id/pago, undoing a payment.
func (h *RestFacturaHandler) MarkPending(c *gin.Context) {
	if err := h.invoiceService.MarkPending(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark invoice pending"})
		return
	}
	c.Status(http.StatusNoContent)
}

// AttachFile handles POST /v1/facturas/:id/archivo. The response carries a
// pre-signed upload URL; the browser PUTs the file straight to S3. A replaced
// attachment's blob is cleaned up in the background.
func (h *RestFacturaHandler) AttachFile(c *gin.Context) {
	var body struct {
		Filename    string `json:"nombre"`
		ContentType string `json:"tipo"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nombre is required"})
		return
	}
	if body.ContentType == "" {
		body.ContentType = "application/octet-stream"
	}
	ctx := c.Request.Context()

	uploadURL, objectKey, err := h.storageService.GeneratePresignedPutURL(ctx, attachmentPrefix, body.Filename, body.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare upload"})
		return
	}

	attachment := models.Attachment{
		Filename:    body.Filename,
		ObjectKey:   objectKey,
		ContentType: body.ContentType,
	}
	replaced, err := h.invoiceService.AttachFile(ctx, c.Param("id"), attachment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Factura not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to attach file"})
		}
		return
	}
	if replaced != nil {
		h.enqueueAttachmentCleanup(ctx, replaced.ObjectKey)
	}

	c.JSON(http.StatusOK, gin.H{
		"uploadUrl": uploadURL,
		"archivo":   attachment,
	})
}

// GetAttachment handles GET /v1/facturas/:id/archivo, returning a pre-signed
// download URL for the stored document.
func (h *RestFacturaHandler) GetAttachment(c *gin.Context) {
	invoice, err := h.invoiceService.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Factura not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve invoice"})
		}
		return
	}
	if invoice.Attachment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Factura has no attachment"})
		return
	}

	downloadURL, err := h.storageService.GeneratePresignedGetURL(c.Request.Context(), invoice.Attachment.ObjectKey)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare download"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"downloadUrl": downloadURL,
		"archivo":     invoice.Attachment,
	})
}

// RemoveAttachment handles DELETE /v1/facturas/:id/archivo. The blob is
// cleaned up in the background; removing from an absent invoice or one with
// no attachment is a no-op.
func (h *RestFacturaHandler) RemoveAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	removed, err := h.invoiceService.RemoveAttachment(ctx, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove attachment"})
		return
	}
	if removed != nil {
		h.enqueueAttachmentCleanup(ctx, removed.ObjectKey)
	}
	c.Status(http.StatusNoContent)
}

// enqueueAttachmentCleanup queues deletion of an orphaned blob. Failures are
// logged, not surfaced: the record change already happened.
func (h *RestFacturaHandler) enqueueAttachmentCleanup(ctx context.Context, objectKey string) {
	task, err := tasks.NewAttachmentCleanupTask(objectKey)
	if err != nil {
		log.Printf("Warning: failed to build cleanup task for %s: %v", objectKey, err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(ctx, task); err != nil {
		log.Printf("Warning: failed to enqueue cleanup task for %s: %v", objectKey, err)
	}
}

// RegisterRestFacturaRoutes mounts the invoice routes.
func RegisterRestFacturaRoutes(r *gin.Engine, handler *RestFacturaHandler) {
	r.GET("/v1/facturas", handler.ListFacturas)
	r.POST("/v1/facturas", handler.CreateFactura)
	r.GET("/v1/facturas/:id", handler.GetFacturaByID)
	r.PUT("/v1/facturas/:id", handler.UpdateFactura)
	r.DELETE("/v1/facturas/:id", handler.DeleteFactura)
	r.POST("/v1/facturas/:id/pago", handler.MarkPaid)
	r.DELETE("/v1/facturas/:id/pago", handler.MarkPending)
	r.POST("/v1/facturas/:id/archivo", handler.AttachFile)
	r.GET("/v1/facturas/:id/archivo", handler.GetAttachment)
	r.DELETE("/v1/facturas/:id/archivo", handler.RemoveAttachment)
}

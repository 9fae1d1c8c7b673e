package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/DLXSERVEIS/Facturacion/internal/models"
	"github.com/DLXSERVEIS/Facturacion/internal/services"
)

// RestPartyHandler handles REST requests for one party directory. The same
// handler serves both clientes and proveedores; only the backing collection
// and the route prefix differ.
type RestPartyHandler struct {
	partyService services.IPartyService
	entityName   string // "Cliente" or "Proveedor", used in error messages
}

// NewRestPartyHandler creates a new RestPartyHandler.
func NewRestPartyHandler(partyService services.IPartyService, entityName string) *RestPartyHandler {
	return &RestPartyHandler{
		partyService: partyService,
		entityName:   entityName,
	}
}

// ListParties handles GET /v1/{clientes|proveedores}
func (h *RestPartyHandler) ListParties(c *gin.Context) {
	parties, err := h.partyService.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list records"})
		return
	}
	c.JSON(http.StatusOK, parties)
}

// GetPartyByID handles GET /v1/{clientes|proveedores}/:id
func (h *RestPartyHandler) GetPartyByID(c *gin.Context) {
	party, err := h.partyService.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": h.entityName + " not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve record"})
		}
		return
	}
	c.JSON(http.StatusOK, party)
}

// CreateParty handles POST /v1/{clientes|proveedores}. The client may supply
// its own id; a missing id gets generated server-side.
func (h *RestPartyHandler) CreateParty(c *gin.Context) {
	var party models.Party
	if err := c.ShouldBindJSON(&party); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if party.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nombre is required"})
		return
	}

	if err := h.partyService.Add(c.Request.Context(), &party); err != nil {
		if errors.Is(err, services.ErrDuplicateID) {
			c.JSON(http.StatusConflict, gin.H{"error": h.entityName + " id already exists"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create record"})
		}
		return
	}
	c.JSON(http.StatusCreated, party)
}

// UpdateParty handles PUT /v1/{clientes|proveedores}/:id. Absent fields stay
// unchanged; an unknown id is a no-op.
func (h *RestPartyHandler) UpdateParty(c *gin.Context) {
	var upd models.PartyUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.partyService.Update(c.Request.Context(), c.Param("id"), upd); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update record"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteParty handles DELETE /v1/{clientes|proveedores}/:id. Deleting an
// absent id succeeds.
func (h *RestPartyHandler) DeleteParty(c *gin.Context) {
	if err := h.partyService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete record"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRestPartyRoutes mounts the directory CRUD under the given prefix
// (e.g. "/v1/clientes").
func RegisterRestPartyRoutes(r *gin.Engine, prefix string, handler *RestPartyHandler) {
	r.GET(prefix, handler.ListParties)
	r.POST(prefix, handler.CreateParty)
	r.GET(prefix+"/:id", handler.GetPartyByID)
	r.PUT(prefix+"/:id", handler.UpdateParty)
	r.DELETE(prefix+"/:id", handler.DeleteParty)
}

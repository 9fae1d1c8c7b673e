package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/DLXSERVEIS/Facturacion/internal/api/handlers"
	"github.com/DLXSERVEIS/Facturacion/internal/api/middleware"
	"github.com/DLXSERVEIS/Facturacion/internal/config"
	"github.com/DLXSERVEIS/Facturacion/internal/services"
	"github.com/DLXSERVEIS/Facturacion/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(
	cfg *config.Config,
	db *mongo.Database,
	taskClient handlers.IAsynqClient,
	companySvc services.ICompanyService,
	storageSvc storage.IS3Storage,
) *gin.Engine {
	// Services needed by the API handlers.
	clienteService := services.NewClienteService(db)
	proveedorService := services.NewProveedorService(db)
	invoiceService := services.NewInvoiceService(db)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	restClienteHandler := handlers.NewRestPartyHandler(clienteService, "Cliente")
	restProveedorHandler := handlers.NewRestPartyHandler(proveedorService, "Proveedor")
	restFacturaHandler := handlers.NewRestFacturaHandler(invoiceService, storageSvc, taskClient)
	restEmpresaHandler := handlers.NewRestEmpresaHandler(companySvc, storageSvc, taskClient)

	handlers.RegisterRestPartyRoutes(r, "/v1/clientes", restClienteHandler)
	handlers.RegisterRestPartyRoutes(r, "/v1/proveedores", restProveedorHandler)
	handlers.RegisterRestFacturaRoutes(r, restFacturaHandler)
	handlers.RegisterRestEmpresaRoutes(r, restEmpresaHandler)

	r.GET("/v1/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	return r
}

// SetupServiceRouter configures and returns the internal service Gin engine,
// used for controlled shutdown of a running instance.
func SetupServiceRouter(cfg *config.Config, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

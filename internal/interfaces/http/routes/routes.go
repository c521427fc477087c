// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/interfaces/http/handlers"
	"github.com/your-org/warehouse-backend/internal/interfaces/http/middleware"
	"github.com/your-org/warehouse-backend/internal/pkg/notify"
	"gorm.io/gorm"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config) {
	notifier := notify.NewPublisher(redisClient, cfg.Warehouse.NotificationChannel)

	authHandler := handlers.NewAuthHandler(db, cfg)
	stockHandler := handlers.NewStockHandler(db, cfg)
	rackHandler := handlers.NewRackHandler(db, cfg)
	fulfillmentHandler := handlers.NewFulfillmentHandler(db, cfg, notifier)
	consignmentHandler := handlers.NewConsignmentHandler(db, cfg, notifier)

	// Public routes
	auth := router.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Authenticated routes
	authenticated := router.Group("")
	authenticated.Use(middleware.AuthMiddleware(cfg))
	{
		authenticated.GET("/auth/me", authHandler.Me)

		// Batch ledger
		batches := authenticated.Group("/batches")
		{
			batches.POST("", stockHandler.ReceiveBatch)
			batches.GET("/:id", stockHandler.GetBatch)
		}

		// Allocation engine
		allocations := authenticated.Group("/allocations")
		{
			allocations.POST("", stockHandler.Allocate)
			allocations.GET("/:id", stockHandler.GetAllocation)
			allocations.POST("/:id/reserve", stockHandler.Reserve)
			allocations.POST("/:id/release", stockHandler.Release)
			allocations.POST("/:id/ship", stockHandler.Ship)
			allocations.POST("/:id/cancel", stockHandler.Cancel)
			allocations.POST("/:id/sub-allocations", stockHandler.SubAllocate)
			allocations.GET("/:id/movements", stockHandler.ListMovements)
			allocations.GET("/:id/verify", stockHandler.Verify)
			allocations.GET("/:id/placements", rackHandler.Placements)
		}

		// Rack placement
		racks := authenticated.Group("/racks")
		{
			racks.POST("/placements", rackHandler.Place)
			racks.POST("/relocations", rackHandler.Relocate)
		}

		// Fulfillment pipeline
		authenticated.POST("/sales-orders", fulfillmentHandler.CreateSalesOrder)
		authenticated.GET("/sales-orders/:id", fulfillmentHandler.GetSalesOrder)

		authenticated.POST("/shipping-plans", fulfillmentHandler.CreateShippingPlan)
		authenticated.GET("/shipping-plans/:id", fulfillmentHandler.GetShippingPlan)
		authenticated.POST("/shipping-plans/:id/confirm", fulfillmentHandler.ConfirmShippingPlan)
		authenticated.POST("/shipping-plans/:id/cancel", fulfillmentHandler.CancelShippingPlan)
		authenticated.POST("/shipping-plans/:id/picking-list", fulfillmentHandler.CreatePickingList)

		authenticated.GET("/picking-lists/:id", fulfillmentHandler.GetPickingList)
		authenticated.POST("/picking-lists/:id/packing-order", fulfillmentHandler.CreatePackingOrder)
		authenticated.POST("/picking-orders/:id/start", fulfillmentHandler.StartPickingOrder)
		authenticated.POST("/picking-orders/:id/cancel", fulfillmentHandler.CancelPickingOrder)
		authenticated.POST("/picking-items/:id/record", fulfillmentHandler.RecordPick)

		authenticated.GET("/packing-orders/:id", fulfillmentHandler.GetPackingOrder)
		authenticated.POST("/packing-orders/:id/boxes", fulfillmentHandler.AddBox)
		authenticated.POST("/packing-orders/:id/complete", fulfillmentHandler.CompletePackingOrder)
		authenticated.POST("/packing-boxes/:id/items", fulfillmentHandler.AddBoxItem)

		authenticated.POST("/shipments", fulfillmentHandler.CreateShipment)
		authenticated.GET("/shipments/:id", fulfillmentHandler.GetShipment)
		authenticated.POST("/shipments/:id/status", fulfillmentHandler.UpdateShipmentStatus)

		// Consignment sub-ledger
		cons := authenticated.Group("/consignment")
		{
			cons.POST("/agreements", consignmentHandler.CreateAgreement)
			cons.GET("/agreements/:id", consignmentHandler.GetAgreement)
			cons.POST("/shipments", consignmentHandler.Ship)
			cons.GET("/shipments/:id", consignmentHandler.GetConsignment)
			cons.POST("/sales", consignmentHandler.RecordSale)
			cons.POST("/returns", consignmentHandler.RecordReturn)
			cons.POST("/statements", consignmentHandler.GenerateStatement)
			cons.POST("/statements/:id/finalize", consignmentHandler.FinalizeStatement)
		}
	}

	// Admin routes
	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/operators", authHandler.CreateOperator)
		admin.POST("/racks", rackHandler.CreateRack)
		admin.DELETE("/consignment/shipments/:id", consignmentHandler.DeleteConsignment)
	}
}

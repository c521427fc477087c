// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/your-org/warehouse-backend/internal/domain/activity"
	"github.com/your-org/warehouse-backend/internal/domain/consignment"
	"github.com/your-org/warehouse-backend/internal/domain/fulfillment"
	"github.com/your-org/warehouse-backend/internal/domain/operator"
	"github.com/your-org/warehouse-backend/internal/domain/rack"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// Models returns every model in dependency order. The test suite uses
// the same list against its own database.
func Models() []interface{} {
	return []interface{}{
		// Operator accounts
		&operator.Operator{},

		// Stock ledger - base tables
		&stock.Batch{},
		&stock.Allocation{},
		&stock.StockMovement{},

		// Rack placement
		&rack.Rack{},
		&rack.RackAllocation{},

		// Fulfillment pipeline
		&fulfillment.SalesOrder{},
		&fulfillment.SalesOrderItem{},
		&fulfillment.ShippingPlan{},
		&fulfillment.ShippingPlanItem{},
		&fulfillment.PickingList{},
		&fulfillment.PickingOrder{},
		&fulfillment.PickingOrderItem{},
		&fulfillment.PackingOrder{},
		&fulfillment.PackingBox{},
		&fulfillment.PackingBoxItem{},
		&fulfillment.Shipment{},

		// Consignment sub-ledger
		&consignment.Agreement{},
		&consignment.Consignment{},
		&consignment.ConsignmentItem{},
		&consignment.Sale{},
		&consignment.Return{},
		&consignment.Statement{},

		// Audit trail
		&activity.Log{},
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	for _, model := range Models() {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// Allocation indexes - hot paths for batch folds and picking
		"CREATE INDEX IF NOT EXISTS idx_allocations_batch_status ON allocations(batch_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_allocations_customer_status ON allocations(customer_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_allocations_contract ON allocations(tender_contract_id, parent_allocation_id)",

		// Stock movement indexes - the journal is read per allocation in order
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_allocation_created ON stock_movements(allocation_id, created_at, id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_batch_created ON stock_movements(batch_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_reference ON stock_movements(reference_type, reference_id)",

		// Rack placement indexes
		"CREATE INDEX IF NOT EXISTS idx_rack_allocations_allocation_placed ON rack_allocations(allocation_id, placed_at)",
		"CREATE INDEX IF NOT EXISTS idx_racks_zone_active ON racks(zone, is_active)",

		// Fulfillment indexes
		"CREATE INDEX IF NOT EXISTS idx_sales_orders_customer_status ON sales_orders(customer_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_shipping_plans_order_status ON shipping_plans(sales_order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_picking_lists_plan ON picking_lists(shipping_plan_id)",
		"CREATE INDEX IF NOT EXISTS idx_picking_order_items_allocation ON picking_order_items(allocation_id)",
		"CREATE INDEX IF NOT EXISTS idx_shipments_plan_status ON shipments(shipping_plan_id, status)",

		// Consignment indexes
		"CREATE INDEX IF NOT EXISTS idx_consignments_agreement_status ON consignments(agreement_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_consignment_sales_sold_at ON consignment_sales(sold_at)",
		"CREATE INDEX IF NOT EXISTS idx_consignment_statements_agreement_period ON consignment_statements(agreement_id, period_start, period_end)",

		// Activity log indexes
		"CREATE INDEX IF NOT EXISTS idx_activity_logs_entity ON activity_logs(entity_type, entity_id, created_at DESC)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedAdminOperator(); err != nil {
		return fmt.Errorf("failed to seed admin operator: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

// seedAdminOperator creates the default admin account for development
func (m *Migration) seedAdminOperator() error {
	var existing operator.Operator
	result := m.db.Where("email = ?", "admin@example.com").First(&existing)
	if result.Error == nil {
		log.Printf("⏭️ Admin operator already exists with ID: %d", existing.ID)
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("Admin#2024!"), 10)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := operator.Operator{
		Email:     "admin@example.com",
		Password:  string(hashedPassword),
		FirstName: "Admin",
		LastName:  "Operator",
		Role:      operator.RoleAdmin,
		IsActive:  true,
	}
	if err := m.db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin operator: %w", err)
	}

	log.Println("✅ Created admin operator: admin@example.com")
	return nil
}

// GetTableInfo returns information about database tables
func (m *Migration) GetTableInfo() error {
	var tables []string

	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		totalRecords += count
		log.Printf("   %-30s | %d records", table, count)
	}
	log.Printf("📈 Total records across %d tables: %d", len(tables), totalRecords)

	return nil
}

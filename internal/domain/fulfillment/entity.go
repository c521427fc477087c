// internal/domain/fulfillment/entity.go
package fulfillment

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SalesOrderStatus represents the sales order status
type SalesOrderStatus string

const (
	SalesOrderStatusPending   SalesOrderStatus = "pending"
	SalesOrderStatusPlanned   SalesOrderStatus = "planned"
	SalesOrderStatusCompleted SalesOrderStatus = "completed"
	SalesOrderStatusCancelled SalesOrderStatus = "cancelled"
)

// SalesOrderItemStatus represents the per-item planning status
type SalesOrderItemStatus string

const (
	SalesOrderItemStatusPending   SalesOrderItemStatus = "pending"
	SalesOrderItemStatusPlanned   SalesOrderItemStatus = "planned"
	SalesOrderItemStatusCompleted SalesOrderItemStatus = "completed"
)

// ShippingPlanStatus represents the shipping plan status
type ShippingPlanStatus string

const (
	ShippingPlanStatusPending            ShippingPlanStatus = "pending"
	ShippingPlanStatusConfirmed          ShippingPlanStatus = "confirmed"
	ShippingPlanStatusPickingListCreated ShippingPlanStatus = "picking_list_created"
	ShippingPlanStatusInProgress         ShippingPlanStatus = "in_progress"
	ShippingPlanStatusCompleted          ShippingPlanStatus = "completed"
	ShippingPlanStatusCancelled          ShippingPlanStatus = "cancelled"
)

// PickingStatus represents picking list and picking order status
type PickingStatus string

const (
	PickingStatusPending    PickingStatus = "pending"
	PickingStatusInProgress PickingStatus = "in_progress"
	PickingStatusCompleted  PickingStatus = "completed"
	PickingStatusCancelled  PickingStatus = "cancelled"
)

// PickingItemStatus represents the terminal outcome of one picking item
type PickingItemStatus string

const (
	PickingItemStatusPending  PickingItemStatus = "pending"
	PickingItemStatusPicked   PickingItemStatus = "picked"
	PickingItemStatusShortage PickingItemStatus = "shortage"
	PickingItemStatusDamaged  PickingItemStatus = "damaged"
)

// PackingStatus represents packing order status
type PackingStatus string

const (
	PackingStatusPending    PackingStatus = "pending"
	PackingStatusInProgress PackingStatus = "in_progress"
	PackingStatusCompleted  PackingStatus = "completed"
)

// ShipmentStatus represents the shipment status
type ShipmentStatus string

const (
	ShipmentStatusPreparing   ShipmentStatus = "preparing"
	ShipmentStatusReadyToShip ShipmentStatus = "ready_to_ship"
	ShipmentStatusShipped     ShipmentStatus = "shipped"
	ShipmentStatusInTransit   ShipmentStatus = "in_transit"
	ShipmentStatusDelivered   ShipmentStatus = "delivered"
	ShipmentStatusCancelled   ShipmentStatus = "cancelled"
	ShipmentStatusReturned    ShipmentStatus = "returned"
)

// SalesOrder represents a customer request for product quantities
type SalesOrder struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	PublicID    string           `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	OrderNumber string           `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	CustomerID  uint             `gorm:"not null;index" json:"customer_id"`
	Status      SalesOrderStatus `gorm:"not null;default:'pending'" json:"status"`
	Notes       string           `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `gorm:"index" json:"-"`

	// Relationships
	Items []SalesOrderItem `gorm:"foreignKey:SalesOrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
}

// SalesOrderItem requests quantity of one product.
// QuantityRemaining = QuantityRequested − QuantityPlanned, never negative.
type SalesOrderItem struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	PublicID          string               `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	SalesOrderID      uint                 `gorm:"not null;index" json:"sales_order_id"`
	ProductID         uint                 `gorm:"not null;index" json:"product_id"`
	QuantityRequested int                  `gorm:"not null" json:"quantity_requested"`
	QuantityPlanned   int                  `gorm:"not null;default:0" json:"quantity_planned"`
	Status            SalesOrderItemStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// ShippingPlan covers sales order items with allocation quantities
type ShippingPlan struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	PublicID     string             `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	PlanNumber   string             `gorm:"uniqueIndex;not null;size:50" json:"plan_number"`
	SalesOrderID uint               `gorm:"not null;index" json:"sales_order_id"`
	Status       ShippingPlanStatus `gorm:"not null;default:'pending'" json:"status"`
	ConfirmedAt  *time.Time         `json:"confirmed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	DeletedAt    gorm.DeletedAt     `gorm:"index" json:"-"`

	// Relationships
	SalesOrder SalesOrder         `gorm:"foreignKey:SalesOrderID" json:"sales_order,omitempty"`
	Items      []ShippingPlanItem `gorm:"foreignKey:ShippingPlanID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
}

// ShippingPlanItem binds planned quantity to an allocation
type ShippingPlanItem struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ShippingPlanID   uint      `gorm:"not null;index" json:"shipping_plan_id"`
	SalesOrderItemID uint      `gorm:"not null;index" json:"sales_order_item_id"`
	AllocationID     uint      `gorm:"not null;index" json:"allocation_id"`
	QuantityPlanned  int       `gorm:"not null" json:"quantity_planned"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PickingList is the pick work derived from a confirmed shipping plan
type PickingList struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	PublicID       string        `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	ShippingPlanID uint          `gorm:"not null;index" json:"shipping_plan_id"`
	Status         PickingStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// Relationships
	Orders []PickingOrder `gorm:"foreignKey:PickingListID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"orders"`
}

// PickingOrder is an assignable unit of pick work
type PickingOrder struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	PublicID      string        `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	PickingListID uint          `gorm:"not null;index" json:"picking_list_id"`
	AssignedTo    *uint         `gorm:"index" json:"assigned_to,omitempty"`
	Status        PickingStatus `gorm:"not null;default:'pending'" json:"status"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Relationships
	Items []PickingOrderItem `gorm:"foreignKey:PickingOrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
}

// PickingOrderItem requests retrieval of quantity from one allocation in
// one rack. A shortage must carry a reason, never a silent drop.
type PickingOrderItem struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	PublicID           string            `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	PickingOrderID     uint              `gorm:"not null;index" json:"picking_order_id"`
	ShippingPlanItemID uint              `gorm:"not null;index" json:"shipping_plan_item_id"`
	AllocationID       uint              `gorm:"not null;index" json:"allocation_id"`
	RackID             uint              `gorm:"not null;index" json:"rack_id"`
	QuantityRequested  int               `gorm:"not null" json:"quantity_requested"`
	QuantityPicked     int               `gorm:"not null;default:0" json:"quantity_picked"`
	Status             PickingItemStatus `gorm:"not null;default:'pending'" json:"status"`
	ShortageReason     string            `gorm:"type:text" json:"shortage_reason"`
	PickedBy           *uint             `json:"picked_by,omitempty"`
	PickedAt           *time.Time        `json:"picked_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// PackingOrder groups a picking list's picked items for one customer
type PackingOrder struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	PublicID      string        `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	PickingListID uint          `gorm:"not null;index" json:"picking_list_id"`
	CustomerID    uint          `gorm:"not null;index" json:"customer_id"`
	Status        PackingStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Relationships
	Boxes []PackingBox `gorm:"foreignKey:PackingOrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"boxes"`
}

// PackingBox is one physical box within a packing order
type PackingBox struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	PublicID       string `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	PackingOrderID uint   `gorm:"not null;index" json:"packing_order_id"`
	BoxNumber      int    `gorm:"not null" json:"box_number"`
	// Opaque master-data reference (packaging material catalogue)
	PackagingMaterialID *uint     `json:"packaging_material_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	// Relationships
	Items []PackingBoxItem `gorm:"foreignKey:PackingBoxID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
}

// PackingBoxItem puts picked quantity into a box; the sum across boxes for
// one picking item never exceeds that item's picked quantity.
type PackingBoxItem struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	PackingBoxID       uint      `gorm:"not null;index" json:"packing_box_id"`
	PickingOrderItemID uint      `gorm:"not null;index" json:"picking_order_item_id"`
	QuantityPacked     int       `gorm:"not null" json:"quantity_packed"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Shipment closes the pipeline for a shipping plan
type Shipment struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	PublicID       string `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	ShipmentNumber string `gorm:"uniqueIndex;not null;size:50" json:"shipment_number"`
	ShippingPlanID uint   `gorm:"not null;index" json:"shipping_plan_id"`
	// Opaque master-data reference (carrier catalogue)
	CarrierTypeID  *uint          `json:"carrier_type_id,omitempty"`
	TrackingNumber string         `gorm:"size:100" json:"tracking_number"`
	Status         ShipmentStatus `gorm:"not null;default:'preparing'" json:"status"`
	ShippedAt      *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	ShippingPlan ShippingPlan `gorm:"foreignKey:ShippingPlanID" json:"shipping_plan,omitempty"`
}

// TableName overrides
func (SalesOrder) TableName() string       { return "sales_orders" }
func (SalesOrderItem) TableName() string   { return "sales_order_items" }
func (ShippingPlan) TableName() string     { return "shipping_plans" }
func (ShippingPlanItem) TableName() string { return "shipping_plan_items" }
func (PickingList) TableName() string      { return "picking_lists" }
func (PickingOrder) TableName() string     { return "picking_orders" }
func (PickingOrderItem) TableName() string { return "picking_order_items" }
func (PackingOrder) TableName() string     { return "packing_orders" }
func (PackingBox) TableName() string       { return "packing_boxes" }
func (PackingBoxItem) TableName() string   { return "packing_box_items" }
func (Shipment) TableName() string         { return "shipments" }

// Business methods

// QuantityRemaining returns what is left to cover with shipping plans
func (i *SalesOrderItem) QuantityRemaining() int {
	return i.QuantityRequested - i.QuantityPlanned
}

// GenerateOrderNumber formats a sales order number from its numeric key
func GenerateOrderNumber(id uint) string {
	return fmt.Sprintf("SO-%s-%05d", time.Now().Format("20060102"), id)
}

// GeneratePlanNumber formats a shipping plan number from its numeric key
func GeneratePlanNumber(id uint) string {
	return fmt.Sprintf("SP-%s-%05d", time.Now().Format("20060102"), id)
}

// GenerateShipmentNumber formats a shipment number from its numeric key
func GenerateShipmentNumber(id uint) string {
	return fmt.Sprintf("SH-%s-%05d", time.Now().Format("20060102"), id)
}

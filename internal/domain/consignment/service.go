// internal/domain/consignment/service.go
package consignment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"gorm.io/gorm"
)

// Notifier publishes consignment lifecycle events
type Notifier interface {
	Publish(event string, payload interface{})
}

// Service handles the consignment sub-ledger business logic
type Service struct {
	db       *gorm.DB
	config   *config.Config
	stockSvc *stock.Service
	notifier Notifier
}

// NewService creates a new consignment service
func NewService(db *gorm.DB, cfg *config.Config, stockSvc *stock.Service, notifier Notifier) *Service {
	return &Service{
		db:       db,
		config:   cfg,
		stockSvc: stockSvc,
		notifier: notifier,
	}
}

// CreateAgreementRequest represents consignment agreement creation data
type CreateAgreementRequest struct {
	CustomerID     uint            `json:"customer_id" binding:"required"`
	Name           string          `json:"name" binding:"required"`
	CommissionRate decimal.Decimal `json:"commission_rate" binding:"required"`
	StartsAt       *time.Time      `json:"starts_at,omitempty"`
	EndsAt         *time.Time      `json:"ends_at,omitempty"`
}

// ShipItemRequest is one allocation line within a consignment shipment
type ShipItemRequest struct {
	AllocationPublicID string          `json:"allocation_id" binding:"required"`
	Quantity           int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice          decimal.Decimal `json:"unit_price" binding:"required"`
}

// ShipRequest represents goods going out to a consignee
type ShipRequest struct {
	AgreementPublicID string            `json:"agreement_id" binding:"required"`
	Items             []ShipItemRequest `json:"items" binding:"required,min=1,dive"`
}

// RecordSaleRequest represents a consignee-reported sale
type RecordSaleRequest struct {
	ConsignmentItemPublicID string           `json:"consignment_item_id" binding:"required"`
	Quantity                int              `json:"quantity" binding:"required,gt=0"`
	UnitPrice               *decimal.Decimal `json:"unit_price,omitempty"`
	SoldAt                  *time.Time       `json:"sold_at,omitempty"`
}

// RecordReturnRequest represents goods coming back from a consignee
type RecordReturnRequest struct {
	ConsignmentItemPublicID string            `json:"consignment_item_id" binding:"required"`
	Quantity                int               `json:"quantity" binding:"required,gt=0"`
	Disposition             ReturnDisposition `json:"disposition" binding:"required"`
	Reason                  string            `json:"reason,omitempty"`
	ReturnedAt              *time.Time        `json:"returned_at,omitempty"`
}

// StatementRequest represents statement generation parameters
type StatementRequest struct {
	AgreementPublicID string    `json:"agreement_id" binding:"required"`
	PeriodStart       time.Time `json:"period_start" binding:"required"`
	PeriodEnd         time.Time `json:"period_end" binding:"required"`
}

// CreateAgreement sets up commercial terms with a consignee
func (s *Service) CreateAgreement(req *CreateAgreementRequest) (*Agreement, error) {
	if req.CommissionRate.IsNegative() || req.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: commission rate must be between 0 and 1", shared.ErrInvalidInput)
	}

	startsAt := time.Now().UTC()
	if req.StartsAt != nil {
		startsAt = *req.StartsAt
	}

	agreement := &Agreement{
		PublicID:       uuid.NewString(),
		CustomerID:     req.CustomerID,
		Name:           req.Name,
		CommissionRate: req.CommissionRate,
		Status:         AgreementStatusActive,
		StartsAt:       startsAt,
		EndsAt:         req.EndsAt,
	}
	if err := s.db.Create(agreement).Error; err != nil {
		return nil, fmt.Errorf("failed to create agreement: %w", err)
	}
	return agreement, nil
}

// GetAgreement retrieves an agreement by public identifier
func (s *Service) GetAgreement(publicID string) (*Agreement, error) {
	var agreement Agreement
	if err := s.db.Where("public_id = ?", publicID).First(&agreement).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve agreement: %w", err)
	}
	return &agreement, nil
}

// Ship moves goods out to a consignee. Each line reserves and ships its
// consignment allocation in the same transaction that writes the
// sub-ledger rows, so the movement log and the consignment stay in step.
func (s *Service) Ship(req *ShipRequest, actorID uint) (*Consignment, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var agreement Agreement
	if err := tx.Where("public_id = ?", req.AgreementPublicID).First(&agreement).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve agreement: %w", err)
	}
	if agreement.Status != AgreementStatusActive {
		tx.Rollback()
		return nil, fmt.Errorf("%w: agreement is %s", shared.ErrInvalidTransition, agreement.Status)
	}

	consignment := &Consignment{
		PublicID:    uuid.NewString(),
		AgreementID: agreement.ID,
		Status:      ConsignmentStatusOpen,
		ShippedAt:   time.Now().UTC(),
	}
	if err := tx.Create(consignment).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create consignment: %w", err)
	}

	for _, line := range req.Items {
		var alloc stock.Allocation
		if err := tx.Where("public_id = ?", line.AllocationPublicID).First(&alloc).Error; err != nil {
			tx.Rollback()
			if err == gorm.ErrRecordNotFound {
				return nil, shared.ErrNotFound
			}
			return nil, fmt.Errorf("failed to retrieve allocation: %w", err)
		}
		if alloc.Type != stock.AllocationTypeConsignment {
			tx.Rollback()
			return nil, fmt.Errorf("%w: allocation %s is %s, consignment shipping requires a consignment allocation",
				shared.ErrInvalidTransition, alloc.PublicID, alloc.Type)
		}

		if err := s.stockSvc.ReserveInTx(tx, &alloc, line.Quantity, "consignment", consignment.ID, actorID); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.stockSvc.ShipInTx(tx, &alloc, line.Quantity, "consignment", consignment.ID, actorID); err != nil {
			tx.Rollback()
			return nil, err
		}

		item := &ConsignmentItem{
			PublicID:        uuid.NewString(),
			ConsignmentID:   consignment.ID,
			AllocationID:    alloc.ID,
			BatchID:         alloc.BatchID,
			QuantityShipped: line.Quantity,
			UnitPrice:       line.UnitPrice,
		}
		if err := tx.Create(item).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create consignment item: %w", err)
		}
		consignment.Items = append(consignment.Items, *item)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit consignment: %w", err)
	}
	return consignment, nil
}

// GetConsignment retrieves a consignment with its items
func (s *Service) GetConsignment(publicID string) (*Consignment, error) {
	var consignment Consignment
	if err := s.db.Preload("Items").Where("public_id = ?", publicID).First(&consignment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve consignment: %w", err)
	}
	return &consignment, nil
}

// RecordSale books a consignee-reported sale against an item. The sale
// can never exceed what is physically sitting at the consignee.
func (s *Service) RecordSale(req *RecordSaleRequest) (*Sale, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	item, agreement, err := s.loadItemTx(tx, req.ConsignmentItemPublicID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if req.Quantity > item.RemainingAtConsignee() {
		tx.Rollback()
		return nil, fmt.Errorf("%w: consignee holds %d, cannot sell %d",
			shared.ErrOverSale, item.RemainingAtConsignee(), req.Quantity)
	}

	unitPrice := item.UnitPrice
	if req.UnitPrice != nil {
		unitPrice = *req.UnitPrice
	}
	soldAt := time.Now().UTC()
	if req.SoldAt != nil {
		soldAt = *req.SoldAt
	}

	totalValue := unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	commission := totalValue.Mul(agreement.CommissionRate).Round(2)
	sale := &Sale{
		PublicID:          uuid.NewString(),
		ConsignmentItemID: item.ID,
		Quantity:          req.Quantity,
		UnitPrice:         unitPrice,
		TotalValue:        totalValue,
		CommissionAmount:  commission,
		NetAmount:         totalValue.Sub(commission),
		SoldAt:            soldAt,
	}
	if err := tx.Create(sale).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}

	if err := s.applySaleTx(tx, item, req.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := s.closeIfSettled(tx, item.ConsignmentID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit sale: %w", err)
	}
	return sale, nil
}

// RecordReturn books goods coming back from the consignee. A RESTOCK
// disposition credits the quantity back onto the allocation ledger in
// the same transaction; SCRAP only updates the sub-ledger.
func (s *Service) RecordReturn(req *RecordReturnRequest, actorID uint) (*Return, error) {
	if req.Disposition != ReturnDispositionRestock && req.Disposition != ReturnDispositionScrap {
		return nil, fmt.Errorf("%w: unknown disposition %q", shared.ErrInvalidInput, req.Disposition)
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	item, _, err := s.loadItemTx(tx, req.ConsignmentItemPublicID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if req.Quantity > item.RemainingAtConsignee() {
		tx.Rollback()
		return nil, fmt.Errorf("%w: consignee holds %d, cannot return %d",
			shared.ErrOverReturn, item.RemainingAtConsignee(), req.Quantity)
	}

	returnedAt := time.Now().UTC()
	if req.ReturnedAt != nil {
		returnedAt = *req.ReturnedAt
	}

	ret := &Return{
		PublicID:          uuid.NewString(),
		ConsignmentItemID: item.ID,
		Quantity:          req.Quantity,
		Disposition:       req.Disposition,
		Reason:            req.Reason,
		ReturnedAt:        returnedAt,
	}
	if err := tx.Create(ret).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create return: %w", err)
	}

	if err := s.applyReturnTx(tx, item, req.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	if req.Disposition == ReturnDispositionRestock {
		alloc, err := s.stockSvc.LoadAllocationInTx(tx, item.AllocationID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.stockSvc.RestockInTx(tx, alloc, req.Quantity, "consignment_return", ret.ID, actorID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := s.closeIfSettled(tx, item.ConsignmentID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit return: %w", err)
	}
	return ret, nil
}

// GenerateStatement builds the settlement statement for an agreement
// over a period. Regenerating for the same agreement and period replaces
// the previous draft, so repeated calls converge on one statement.
func (s *Service) GenerateStatement(req *StatementRequest) (*Statement, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, fmt.Errorf("%w: period end must be after period start", shared.ErrInvalidInput)
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var agreement Agreement
	if err := tx.Where("public_id = ?", req.AgreementPublicID).First(&agreement).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve agreement: %w", err)
	}

	if err := tx.Where("agreement_id = ? AND period_start = ? AND period_end = ? AND status = ?",
		agreement.ID, req.PeriodStart, req.PeriodEnd, StatementStatusDraft).
		Delete(&Statement{}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to replace draft statement: %w", err)
	}

	var sold struct {
		QuantitySold    int
		GrossValue      decimal.Decimal
		CommissionTotal decimal.Decimal
		NetPayable      decimal.Decimal
	}
	err := tx.Model(&Sale{}).
		Select("COALESCE(SUM(consignment_sales.quantity), 0) AS quantity_sold, "+
			"COALESCE(SUM(consignment_sales.total_value), 0) AS gross_value, "+
			"COALESCE(SUM(consignment_sales.commission_amount), 0) AS commission_total, "+
			"COALESCE(SUM(consignment_sales.net_amount), 0) AS net_payable").
		Joins("JOIN consignment_items ON consignment_items.id = consignment_sales.consignment_item_id").
		Joins("JOIN consignments ON consignments.id = consignment_items.consignment_id").
		Where("consignments.agreement_id = ? AND consignment_sales.sold_at >= ? AND consignment_sales.sold_at < ?",
			agreement.ID, req.PeriodStart, req.PeriodEnd).
		Scan(&sold).Error
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to total sales: %w", err)
	}

	// Shipments are dated on the consignment, valued at item price.
	var shipped struct {
		QuantityShipped int
		ShippedValue    decimal.Decimal
	}
	err = tx.Model(&ConsignmentItem{}).
		Select("COALESCE(SUM(consignment_items.quantity_shipped), 0) AS quantity_shipped, "+
			"COALESCE(SUM(consignment_items.quantity_shipped * consignment_items.unit_price), 0) AS shipped_value").
		Joins("JOIN consignments ON consignments.id = consignment_items.consignment_id").
		Where("consignments.agreement_id = ? AND consignments.shipped_at >= ? AND consignments.shipped_at < ?",
			agreement.ID, req.PeriodStart, req.PeriodEnd).
		Scan(&shipped).Error
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to total shipments: %w", err)
	}

	var returned struct {
		QuantityReturned int
		ReturnedValue    decimal.Decimal
	}
	err = tx.Model(&Return{}).
		Select("COALESCE(SUM(consignment_returns.quantity), 0) AS quantity_returned, "+
			"COALESCE(SUM(consignment_returns.quantity * consignment_items.unit_price), 0) AS returned_value").
		Joins("JOIN consignment_items ON consignment_items.id = consignment_returns.consignment_item_id").
		Joins("JOIN consignments ON consignments.id = consignment_items.consignment_id").
		Where("consignments.agreement_id = ? AND consignment_returns.returned_at >= ? AND consignment_returns.returned_at < ?",
			agreement.ID, req.PeriodStart, req.PeriodEnd).
		Scan(&returned).Error
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to total returns: %w", err)
	}

	statement := &Statement{
		PublicID:         uuid.NewString(),
		AgreementID:      agreement.ID,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		Status:           StatementStatusDraft,
		QuantityShipped:  shipped.QuantityShipped,
		ShippedValue:     shipped.ShippedValue,
		QuantitySold:     sold.QuantitySold,
		GrossValue:       sold.GrossValue,
		CommissionTotal:  sold.CommissionTotal,
		NetPayable:       sold.NetPayable,
		QuantityReturned: returned.QuantityReturned,
		ReturnedValue:    returned.ReturnedValue,
	}
	if err := tx.Create(statement).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create statement: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit statement: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Publish("consignment.statement_generated", map[string]interface{}{
			"statement_id": statement.PublicID,
			"agreement_id": agreement.PublicID,
			"net_payable":  statement.NetPayable,
		})
	}
	return statement, nil
}

// FinalizeStatement locks a draft statement for payout
func (s *Service) FinalizeStatement(publicID string) (*Statement, error) {
	var statement Statement
	if err := s.db.Where("public_id = ?", publicID).First(&statement).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve statement: %w", err)
	}

	if statement.Status != StatementStatusDraft {
		return nil, fmt.Errorf("%w: statement is %s", shared.ErrInvalidTransition, statement.Status)
	}

	now := time.Now().UTC()
	if err := s.db.Model(&statement).Updates(map[string]interface{}{
		"status":       StatementStatusFinalized,
		"finalized_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to finalize statement: %w", err)
	}
	statement.Status = StatementStatusFinalized
	statement.FinalizedAt = &now
	return &statement, nil
}

// DeleteConsignment removes a consignment and its items. Once sales or
// returns exist the financial trail must survive, so deletion is refused
// unless forced; a forced delete cascades and is logged.
func (s *Service) DeleteConsignment(publicID string, force bool) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var consignment Consignment
	if err := tx.Preload("Items").Where("public_id = ?", publicID).First(&consignment).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return shared.ErrNotFound
		}
		return fmt.Errorf("failed to retrieve consignment: %w", err)
	}

	itemIDs := make([]uint, 0, len(consignment.Items))
	hasActivity := false
	for _, item := range consignment.Items {
		itemIDs = append(itemIDs, item.ID)
		if item.QuantitySold > 0 || item.QuantityReturned > 0 {
			hasActivity = true
		}
	}

	if hasActivity && !force {
		tx.Rollback()
		return fmt.Errorf("%w: consignment has recorded sales or returns", shared.ErrInvalidTransition)
	}

	if len(itemIDs) > 0 {
		if hasActivity {
			if err := tx.Where("consignment_item_id IN ?", itemIDs).Delete(&Sale{}).Error; err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to delete sales: %w", err)
			}
			if err := tx.Where("consignment_item_id IN ?", itemIDs).Delete(&Return{}).Error; err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to delete returns: %w", err)
			}
		}
		if err := tx.Where("consignment_id = ?", consignment.ID).Delete(&ConsignmentItem{}).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to delete consignment items: %w", err)
		}
	}

	if err := tx.Delete(&consignment).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete consignment: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit deletion: %w", err)
	}

	if hasActivity {
		logrus.WithFields(logrus.Fields{
			"consignment_id": publicID,
			"items":          len(itemIDs),
		}).Warn("Forced deletion of consignment with recorded activity")
	}
	return nil
}

// applySaleTx adds quantity to the item's sold counter with the shipped
// ceiling enforced in the WHERE clause. Two writers racing past the
// same stale read cannot oversell the item together: the relative
// update keeps both contributions and the guard rejects the one that
// would breach the ceiling.
func (s *Service) applySaleTx(tx *gorm.DB, item *ConsignmentItem, quantity int) error {
	res := tx.Model(&ConsignmentItem{}).
		Where("id = ? AND quantity_sold + quantity_returned + ? <= quantity_shipped", item.ID, quantity).
		Update("quantity_sold", gorm.Expr("quantity_sold + ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("failed to update consignment item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: consignee holds %d, cannot sell %d",
			shared.ErrOverSale, item.RemainingAtConsignee(), quantity)
	}
	item.QuantitySold += quantity
	return nil
}

// applyReturnTx mirrors applySaleTx for the returned counter.
func (s *Service) applyReturnTx(tx *gorm.DB, item *ConsignmentItem, quantity int) error {
	res := tx.Model(&ConsignmentItem{}).
		Where("id = ? AND quantity_sold + quantity_returned + ? <= quantity_shipped", item.ID, quantity).
		Update("quantity_returned", gorm.Expr("quantity_returned + ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("failed to update consignment item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: consignee holds %d, cannot return %d",
			shared.ErrOverReturn, item.RemainingAtConsignee(), quantity)
	}
	item.QuantityReturned += quantity
	return nil
}

// loadItemTx fetches an item with its governing agreement inside a
// transaction.
func (s *Service) loadItemTx(tx *gorm.DB, itemPublicID string) (*ConsignmentItem, *Agreement, error) {
	var item ConsignmentItem
	if err := tx.Where("public_id = ?", itemPublicID).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, shared.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to retrieve consignment item: %w", err)
	}

	var consignment Consignment
	if err := tx.First(&consignment, item.ConsignmentID).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve consignment: %w", err)
	}

	var agreement Agreement
	if err := tx.First(&agreement, consignment.AgreementID).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve agreement: %w", err)
	}
	return &item, &agreement, nil
}

// closeIfSettled marks the consignment closed once every item's shipped
// quantity has been fully sold or returned.
func (s *Service) closeIfSettled(tx *gorm.DB, consignmentID uint) error {
	var open int64
	err := tx.Model(&ConsignmentItem{}).
		Where("consignment_id = ? AND quantity_shipped > quantity_sold + quantity_returned", consignmentID).
		Count(&open).Error
	if err != nil {
		return fmt.Errorf("failed to check consignment items: %w", err)
	}
	if open > 0 {
		return nil
	}
	if err := tx.Model(&Consignment{}).Where("id = ?", consignmentID).
		Update("status", ConsignmentStatusClosed).Error; err != nil {
		return fmt.Errorf("failed to close consignment: %w", err)
	}
	return nil
}

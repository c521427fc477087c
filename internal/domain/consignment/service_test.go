// internal/domain/consignment/service_test.go
package consignment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type captureNotifier struct {
	events []string
}

func (n *captureNotifier) Publish(event string, payload interface{}) {
	n.events = append(n.events, event)
}

func newTestService(t *testing.T) (*Service, *stock.Service, *captureNotifier) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A pooled second connection would see its own empty in-memory database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&stock.Batch{}, &stock.Allocation{}, &stock.StockMovement{},
		&Agreement{}, &Consignment{}, &ConsignmentItem{},
		&Sale{}, &Return{}, &Statement{},
	))

	cfg := &config.Config{}
	stockSvc := stock.NewService(db, cfg)
	notifier := &captureNotifier{}
	return NewService(db, cfg, stockSvc, notifier), stockSvc, notifier
}

func seedConsignmentAllocation(t *testing.T, stockSvc *stock.Service, quantity int) *stock.Allocation {
	t.Helper()
	batch, err := stockSvc.ReceiveBatch(&stock.ReceiveBatchRequest{
		ProductID:        1,
		LotNumber:        "LOT-001",
		ReceivedQuantity: quantity * 2,
	})
	require.NoError(t, err)

	alloc, err := stockSvc.Allocate(&stock.AllocateRequest{
		BatchPublicID: batch.PublicID,
		Quantity:      quantity,
		Type:          stock.AllocationTypeConsignment,
	}, 1)
	require.NoError(t, err)
	return alloc
}

func seedAgreement(t *testing.T, svc *Service, rate string) *Agreement {
	t.Helper()
	agreement, err := svc.CreateAgreement(&CreateAgreementRequest{
		CustomerID:     5,
		Name:           "Downtown store",
		CommissionRate: decimal.RequireFromString(rate),
	})
	require.NoError(t, err)
	return agreement
}

func seedShipped(t *testing.T, svc *Service, stockSvc *stock.Service, quantity int, unitPrice string) (*Agreement, *Consignment, *stock.Allocation) {
	t.Helper()
	agreement := seedAgreement(t, svc, "0.15")
	alloc := seedConsignmentAllocation(t, stockSvc, quantity)

	consignment, err := svc.Ship(&ShipRequest{
		AgreementPublicID: agreement.PublicID,
		Items: []ShipItemRequest{{
			AllocationPublicID: alloc.PublicID,
			Quantity:           quantity,
			UnitPrice:          decimal.RequireFromString(unitPrice),
		}},
	}, 1)
	require.NoError(t, err)
	return agreement, consignment, alloc
}

func TestCreateAgreementRejectsBadRate(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateAgreement(&CreateAgreementRequest{
		CustomerID:     5,
		Name:           "Downtown store",
		CommissionRate: decimal.RequireFromString("1.5"),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestShipMovesStockToConsignee(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, alloc := seedShipped(t, svc, stockSvc, 10, "25.00")

	assert.Equal(t, ConsignmentStatusOpen, consignment.Status)
	require.Len(t, consignment.Items, 1)
	assert.Equal(t, 10, consignment.Items[0].QuantityShipped)
	assert.Equal(t, 10, consignment.Items[0].RemainingAtConsignee())

	// The full quantity went through reserve and ship on the ledger
	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.ShippedQuantity)
	assert.Equal(t, 0, reloaded.ReservedQuantity)
}

func TestShipRequiresConsignmentAllocation(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	agreement := seedAgreement(t, svc, "0.15")

	batch, err := stockSvc.ReceiveBatch(&stock.ReceiveBatchRequest{
		ProductID: 1, LotNumber: "LOT-001", ReceivedQuantity: 20,
	})
	require.NoError(t, err)
	regular, err := stockSvc.Allocate(&stock.AllocateRequest{
		BatchPublicID: batch.PublicID,
		Quantity:      10,
		Type:          stock.AllocationTypeRegular,
	}, 1)
	require.NoError(t, err)

	_, err = svc.Ship(&ShipRequest{
		AgreementPublicID: agreement.PublicID,
		Items: []ShipItemRequest{{
			AllocationPublicID: regular.PublicID,
			Quantity:           10,
			UnitPrice:          decimal.RequireFromString("25.00"),
		}},
	}, 1)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRecordSaleComputesCommission(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	sale, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                4,
	})
	require.NoError(t, err)

	assert.True(t, sale.TotalValue.Equal(decimal.RequireFromString("100.00")), sale.TotalValue.String())
	assert.True(t, sale.CommissionAmount.Equal(decimal.RequireFromString("15.00")), sale.CommissionAmount.String())
	assert.True(t, sale.NetAmount.Equal(decimal.RequireFromString("85.00")), sale.NetAmount.String())

	item, err := svc.GetConsignment(consignment.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Items[0].QuantitySold)
	assert.Equal(t, 6, item.Items[0].RemainingAtConsignee())
}

func TestRecordSaleRejectsOverSale(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                11,
	})
	assert.ErrorIs(t, err, shared.ErrOverSale)
}

func TestSellingEverythingClosesConsignment(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                10,
	})
	require.NoError(t, err)

	reloaded, err := svc.GetConsignment(consignment.PublicID)
	require.NoError(t, err)
	assert.Equal(t, ConsignmentStatusClosed, reloaded.Status)
}

func TestRestockReturnCreditsAllocation(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, alloc := seedShipped(t, svc, stockSvc, 10, "25.00")

	_, err := svc.RecordReturn(&RecordReturnRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                3,
		Disposition:             ReturnDispositionRestock,
		Reason:                  "seasonal return",
	}, 1)
	require.NoError(t, err)

	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.ShippedQuantity)
	assert.Equal(t, 3, reloaded.AvailableStock())
	assert.Equal(t, stock.AllocationStatusActive, reloaded.Status)
}

func TestScrapReturnLeavesLedgerUntouched(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, alloc := seedShipped(t, svc, stockSvc, 10, "25.00")

	_, err := svc.RecordReturn(&RecordReturnRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                3,
		Disposition:             ReturnDispositionScrap,
		Reason:                  "water damage",
	}, 1)
	require.NoError(t, err)

	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.ShippedQuantity)

	item, err := svc.GetConsignment(consignment.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Items[0].QuantityReturned)
	assert.Equal(t, 7, item.Items[0].RemainingAtConsignee())
}

func TestRecordReturnRejectsOverReturn(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                8,
	})
	require.NoError(t, err)

	_, err = svc.RecordReturn(&RecordReturnRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                3,
		Disposition:             ReturnDispositionScrap,
	}, 1)
	assert.ErrorIs(t, err, shared.ErrOverReturn)
}

func TestSaleCeilingHoldsAgainstStaleReads(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	// Copy read before a competing sale lands
	stale := consignment.Items[0]

	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: stale.PublicID,
		Quantity:                6,
	})
	require.NoError(t, err)

	tx := svc.db.Begin()
	err = svc.applySaleTx(tx, &stale, 6)
	tx.Rollback()
	assert.ErrorIs(t, err, shared.ErrOverSale)

	tx = svc.db.Begin()
	require.NoError(t, svc.applySaleTx(tx, &stale, 4))
	require.NoError(t, tx.Commit().Error)

	// The counter moved relatively; the earlier sale was not lost
	reloaded, err := svc.GetConsignment(consignment.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.Items[0].QuantitySold)
}

func TestReturnCeilingHoldsAgainstStaleReads(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	stale := consignment.Items[0]

	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: stale.PublicID,
		Quantity:                8,
	})
	require.NoError(t, err)

	tx := svc.db.Begin()
	err = svc.applyReturnTx(tx, &stale, 3)
	tx.Rollback()
	assert.ErrorIs(t, err, shared.ErrOverReturn)

	tx = svc.db.Begin()
	require.NoError(t, svc.applyReturnTx(tx, &stale, 2))
	require.NoError(t, tx.Commit().Error)

	reloaded, err := svc.GetConsignment(consignment.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Items[0].QuantityReturned)
}

func TestGenerateStatementAggregatesPeriodSales(t *testing.T) {
	svc, stockSvc, notifier := newTestService(t)
	agreement, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	inPeriod := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	outOfPeriod := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                4,
		SoldAt:                  &inPeriod,
	})
	require.NoError(t, err)
	_, err = svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                2,
		SoldAt:                  &outOfPeriod,
	})
	require.NoError(t, err)

	statement, err := svc.GenerateStatement(&StatementRequest{
		AgreementPublicID: agreement.PublicID,
		PeriodStart:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:         time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, StatementStatusDraft, statement.Status)
	assert.Equal(t, 4, statement.QuantitySold)
	assert.True(t, statement.GrossValue.Equal(decimal.RequireFromString("100.00")), statement.GrossValue.String())
	assert.True(t, statement.CommissionTotal.Equal(decimal.RequireFromString("15.00")), statement.CommissionTotal.String())
	assert.True(t, statement.NetPayable.Equal(decimal.RequireFromString("85.00")), statement.NetPayable.String())
	assert.Contains(t, notifier.events, "consignment.statement_generated")
}

func TestGenerateStatementTotalsShippedSoldAndReturned(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	agreement, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	now := time.Now().UTC()
	outOfPeriod := now.AddDate(0, 2, 0)

	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                4,
	})
	require.NoError(t, err)
	_, err = svc.RecordReturn(&RecordReturnRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                2,
		Disposition:             ReturnDispositionScrap,
	}, 1)
	require.NoError(t, err)
	_, err = svc.RecordReturn(&RecordReturnRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                1,
		Disposition:             ReturnDispositionScrap,
		ReturnedAt:              &outOfPeriod,
	}, 1)
	require.NoError(t, err)

	statement, err := svc.GenerateStatement(&StatementRequest{
		AgreementPublicID: agreement.PublicID,
		PeriodStart:       now.Add(-time.Hour),
		PeriodEnd:         now.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, 10, statement.QuantityShipped)
	assert.True(t, statement.ShippedValue.Equal(decimal.RequireFromString("250.00")), statement.ShippedValue.String())
	assert.Equal(t, 4, statement.QuantitySold)
	assert.True(t, statement.GrossValue.Equal(decimal.RequireFromString("100.00")), statement.GrossValue.String())
	assert.Equal(t, 2, statement.QuantityReturned)
	assert.True(t, statement.ReturnedValue.Equal(decimal.RequireFromString("50.00")), statement.ReturnedValue.String())
}

func TestGenerateStatementReplacesDraft(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	agreement, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	soldAt := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                4,
		SoldAt:                  &soldAt,
	})
	require.NoError(t, err)

	req := &StatementRequest{
		AgreementPublicID: agreement.PublicID,
		PeriodStart:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:         time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	first, err := svc.GenerateStatement(req)
	require.NoError(t, err)
	second, err := svc.GenerateStatement(req)
	require.NoError(t, err)

	// Regeneration converged on a single draft with identical totals
	var count int64
	require.NoError(t, svc.db.Model(&Statement{}).Where("agreement_id = ?", agreement.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.True(t, first.NetPayable.Equal(second.NetPayable))
}

func TestFinalizedStatementIsImmutable(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	agreement, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	soldAt := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                4,
		SoldAt:                  &soldAt,
	})
	require.NoError(t, err)

	req := &StatementRequest{
		AgreementPublicID: agreement.PublicID,
		PeriodStart:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:         time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	statement, err := svc.GenerateStatement(req)
	require.NoError(t, err)

	finalized, err := svc.FinalizeStatement(statement.PublicID)
	require.NoError(t, err)
	assert.Equal(t, StatementStatusFinalized, finalized.Status)
	assert.NotNil(t, finalized.FinalizedAt)

	_, err = svc.FinalizeStatement(statement.PublicID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	// Regenerating the period leaves the finalized statement in place
	_, err = svc.GenerateStatement(req)
	require.NoError(t, err)
	var finalizedCount int64
	require.NoError(t, svc.db.Model(&Statement{}).
		Where("agreement_id = ? AND status = ?", agreement.ID, StatementStatusFinalized).
		Count(&finalizedCount).Error)
	assert.Equal(t, int64(1), finalizedCount)
}

func TestDeleteConsignmentRefusedAfterActivity(t *testing.T) {
	svc, stockSvc, _ := newTestService(t)
	_, consignment, _ := seedShipped(t, svc, stockSvc, 10, "25.00")

	_, err := svc.RecordSale(&RecordSaleRequest{
		ConsignmentItemPublicID: consignment.Items[0].PublicID,
		Quantity:                4,
	})
	require.NoError(t, err)

	err = svc.DeleteConsignment(consignment.PublicID, false)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	// Forced deletion cascades the sub-ledger
	require.NoError(t, svc.DeleteConsignment(consignment.PublicID, true))
	_, err = svc.GetConsignment(consignment.PublicID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

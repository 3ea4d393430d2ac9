package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ReferralRate is paid to the referrer on each order placed by a referred customer
	ReferralRate = decimal.RequireFromString("0.05")
	// FulfillmentRate is paid to the distributor who fulfilled an order
	FulfillmentRate = decimal.RequireFromString("0.10")
)

// CommissionService computes, stores and pays out commissions
type CommissionService struct {
	db    *gorm.DB
	tasks *TaskService
}

// NewCommissionService creates a new commission service instance
func NewCommissionService(db *gorm.DB) *CommissionService {
	return &CommissionService{db: db, tasks: NewTaskService(db)}
}

// CreateCommissionParams holds the fields of a new commission
type CreateCommissionParams struct {
	UserID  uint
	Amount  decimal.Decimal
	Type    models.CommissionType
	Related models.RelatedRef
	Rate    decimal.Decimal
	Notes   string
}

func (p CreateCommissionParams) validate() error {
	switch {
	case p.UserID == 0:
		return fmt.Errorf("%w: user id is required", ErrValidation)
	case !p.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	case !p.Type.Valid():
		return fmt.Errorf("%w: unknown commission type %q", ErrValidation, p.Type)
	case p.Related.IsZero():
		return fmt.Errorf("%w: related entity is required", ErrValidation)
	case !p.Rate.IsPositive():
		return fmt.Errorf("%w: rate must be positive", ErrValidation)
	}
	return nil
}

// CreateCommission inserts a Pending commission and opens a review task for it.
// Pass tx to make the commission atomic with the caller's writes.
// A failure to create the review task is logged and does not fail the commission.
func (s *CommissionService) CreateCommission(ctx context.Context, tx *gorm.DB, params CreateCommissionParams) (*models.Commission, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	conn := s.conn(ctx, tx)

	if orderID, ok := params.Related.OrderID(); ok {
		var count int64
		if err := conn.Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check related order: %w", err)
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: related order %s", ErrNotFound, orderID)
		}
	} else if params.Related.Kind == models.RelatedKindOrder {
		return nil, fmt.Errorf("%w: malformed order reference", ErrValidation)
	}

	commission := models.Commission{
		UserID:  params.UserID,
		Amount:  roundMoney(params.Amount),
		Rate:    params.Rate,
		Type:    params.Type,
		Status:  models.CommissionPending,
		Related: params.Related,
		Notes:   params.Notes,
	}
	if err := conn.Create(&commission).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s commission already exists for %s", ErrConflict, params.Type, params.Related)
		}
		return nil, fmt.Errorf("failed to create commission: %w", err)
	}

	// Savepoint so a failed task insert does not poison the outer transaction
	title := fmt.Sprintf("Review %s commission of $%s", commission.Type, commission.Amount.StringFixed(2))
	taskErr := conn.Transaction(func(inner *gorm.DB) error {
		_, err := s.tasks.CreateTask(ctx, inner, title, commission.Notes, models.TaskCommissionReview, models.RelatedToCommission(commission.ID))
		return err
	})
	if taskErr != nil {
		log.Printf("Failed to create review task for commission %d: %v", commission.ID, taskErr)
	}

	return &commission, nil
}

// CalculateCommissionForOrder creates the commission an order earns: 10% to an assigned
// distributor, otherwise 5% to the purchaser's referrer. It returns nil when neither applies.
// Calling it again for the same order returns the existing commission instead of a new one.
func (s *CommissionService) CalculateCommissionForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Commission, error) {
	conn := s.conn(ctx, tx)

	var order models.Order
	if err := conn.First(&order, "id = ?", orderID).Error; err != nil {
		return nil, notFound(err, "order")
	}

	params, err := s.commissionFor(conn, &order)
	if err != nil || params == nil {
		return nil, err
	}

	var existing models.Commission
	err = conn.Where("related_kind = ? AND related_id = ? AND type = ?", params.Related.Kind, params.Related.ID, params.Type).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing commission: %w", err)
	}

	return s.CreateCommission(ctx, tx, *params)
}

func (s *CommissionService) commissionFor(conn *gorm.DB, order *models.Order) (*CreateCommissionParams, error) {
	if order.DistributorID != nil {
		var distributor models.User
		err := conn.First(&distributor, *order.DistributorID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load distributor: %w", err)
		}
		if err == nil && distributor.Role == models.RoleDistributor {
			return &CreateCommissionParams{
				UserID:  distributor.ID,
				Amount:  order.TotalAmount.Mul(FulfillmentRate),
				Type:    models.CommissionDistributorFulfillment,
				Related: models.RelatedToOrder(order.ID),
				Rate:    FulfillmentRate,
				Notes:   fmt.Sprintf("Fulfillment of order %s", order.ID),
			}, nil
		}
	}

	var purchaser models.User
	if err := conn.First(&purchaser, order.UserID).Error; err != nil {
		return nil, notFound(err, "purchaser")
	}
	if purchaser.ReferredBy == nil {
		return nil, nil
	}
	return referralCommissionParams(order, *purchaser.ReferredBy), nil
}

func referralCommissionParams(order *models.Order, referrerID uint) *CreateCommissionParams {
	commissionType := models.CommissionOrderReferral
	if order.IsWholesale {
		commissionType = models.CommissionWholesaleReferral
	}
	return &CreateCommissionParams{
		UserID:  referrerID,
		Amount:  order.TotalAmount.Mul(ReferralRate),
		Type:    commissionType,
		Related: models.RelatedToOrder(order.ID),
		Rate:    ReferralRate,
		Notes:   fmt.Sprintf("Referral on order %s", order.ID),
	}
}

// ApproveCommission moves a Pending commission to Approved and closes its review task
func (s *CommissionService) ApproveCommission(ctx context.Context, id uint, adminUserID uint) (*models.Commission, error) {
	var commission models.Commission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&commission, id).Error; err != nil {
			return notFound(err, "commission")
		}
		if commission.Status != models.CommissionPending {
			return fmt.Errorf("%w: commission is %s, only Pending commissions can be approved", ErrInvalidTransition, commission.Status)
		}

		now := time.Now()
		result := tx.Model(&models.Commission{}).
			Where("id = ? AND status = ?", id, models.CommissionPending).
			Updates(map[string]interface{}{"status": models.CommissionApproved, "approved_by": adminUserID, "approved_at": now})
		if result.Error != nil {
			return fmt.Errorf("failed to approve commission: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: commission changed concurrently", ErrConflict)
		}
		commission.Status = models.CommissionApproved
		commission.ApprovedBy = &adminUserID
		commission.ApprovedAt = &now

		_, err := s.tasks.CompleteTasks(ctx, tx, models.TaskCommissionReview, models.RelatedToCommission(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// CancelCommission cancels a commission that has not been paid yet
func (s *CommissionService) CancelCommission(ctx context.Context, id uint, reason string) (*models.Commission, error) {
	var commission models.Commission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&commission, id).Error; err != nil {
			return notFound(err, "commission")
		}
		if commission.Status != models.CommissionPending && commission.Status != models.CommissionApproved {
			return fmt.Errorf("%w: commission is %s and cannot be cancelled", ErrInvalidTransition, commission.Status)
		}
		if err := tx.Model(&commission).Updates(map[string]interface{}{"status": models.CommissionCancelled, "notes": reason}).Error; err != nil {
			return fmt.Errorf("failed to cancel commission: %w", err)
		}
		commission.Status = models.CommissionCancelled
		commission.Notes = reason

		_, err := s.tasks.CompleteTasks(ctx, tx, models.TaskCommissionReview, models.RelatedToCommission(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// CancelCommissionsForOrder cancels the unpaid commissions of a voided order.
// Paid commissions are left untouched.
func (s *CommissionService) CancelCommissionsForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	related := models.RelatedToOrder(orderID)
	conn := s.conn(ctx, tx)

	var ids []uint
	if err := conn.Model(&models.Commission{}).
		Where("related_kind = ? AND related_id = ? AND status IN ?", related.Kind, related.ID,
			[]models.CommissionStatus{models.CommissionPending, models.CommissionApproved}).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find order commissions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := conn.Model(&models.Commission{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": models.CommissionCancelled, "notes": fmt.Sprintf("Order %s cancelled", orderID)})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel order commissions: %w", result.Error)
	}
	for _, id := range ids {
		if _, err := s.tasks.CompleteTasks(ctx, tx, models.TaskCommissionReview, models.RelatedToCommission(id)); err != nil {
			return 0, err
		}
	}
	return result.RowsAffected, nil
}

// GetPayableCommissions returns Approved commissions with their users, oldest first
func (s *CommissionService) GetPayableCommissions(ctx context.Context) ([]models.Commission, error) {
	var commissions []models.Commission
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("status = ?", models.CommissionApproved).
		Order("created_at ASC, id ASC").
		Find(&commissions).Error; err != nil {
		return nil, fmt.Errorf("failed to load payable commissions: %w", err)
	}
	return commissions, nil
}

// PayoutResult summarizes a processed payout batch
type PayoutResult struct {
	BatchID        string          `json:"batch_id"`
	ProcessedCount int             `json:"processed_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CommissionIDs  []uint          `json:"commission_ids"`
	SkippedIDs     []uint          `json:"skipped_ids"`
}

// ProcessCommissionPayout marks the still-Approved commissions among ids as Paid under one batch id.
// Ids that are no longer Approved are skipped; if none remain the whole call fails.
func (s *CommissionService) ProcessCommissionPayout(ctx context.Context, ids []uint, method, reference string) (*PayoutResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one commission id is required", ErrValidation)
	}
	if method == "" {
		return nil, fmt.Errorf("%w: payment method is required", ErrValidation)
	}

	var result *PayoutResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var approved []models.Commission
		if err := tx.Where("id IN ? AND status = ?", ids, models.CommissionApproved).
			Order("created_at ASC, id ASC").
			Find(&approved).Error; err != nil {
			return fmt.Errorf("failed to verify commissions: %w", err)
		}
		if len(approved) == 0 {
			return ErrNoPayableCommissions
		}

		total := decimal.Zero
		paidIDs := make([]uint, 0, len(approved))
		perUser := make(map[uint]decimal.Decimal)
		for _, c := range approved {
			total = total.Add(c.Amount)
			paidIDs = append(paidIDs, c.ID)
			perUser[c.UserID] = perUser[c.UserID].Add(c.Amount)
		}

		batchID := uuid.NewString()
		now := time.Now()
		update := tx.Model(&models.Commission{}).
			Where("id IN ? AND status = ?", paidIDs, models.CommissionApproved).
			Updates(map[string]interface{}{
				"status":            models.CommissionPaid,
				"payout_batch_id":   batchID,
				"payment_method":    method,
				"payment_reference": reference,
				"payment_date":      now,
			})
		if update.Error != nil {
			return fmt.Errorf("failed to mark commissions paid: %w", update.Error)
		}
		if update.RowsAffected != int64(len(paidIDs)) {
			return fmt.Errorf("%w: commissions changed during payout", ErrConflict)
		}

		for userID, amount := range perUser {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).
				Update("commission_balance", gorm.Expr("commission_balance + ?", amount)).Error; err != nil {
				return fmt.Errorf("failed to credit user %d: %w", userID, err)
			}
		}

		result = &PayoutResult{
			BatchID:        batchID,
			ProcessedCount: len(paidIDs),
			TotalAmount:    roundMoney(total),
			CommissionIDs:  paidIDs,
			SkippedIDs:     skipped(ids, paidIDs),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Processed commission payout batch %s: %d commissions, $%s", result.BatchID, result.ProcessedCount, result.TotalAmount.StringFixed(2))
	return result, nil
}

func skipped(requested, processed []uint) []uint {
	done := make(map[uint]bool, len(processed))
	for _, id := range processed {
		done[id] = true
	}
	out := []uint{}
	for _, id := range requested {
		if !done[id] {
			out = append(out, id)
			done[id] = true
		}
	}
	return out
}

// StatusTotal is the count and sum of a user's commissions in one status
type StatusTotal struct {
	Status models.CommissionStatus `json:"status"`
	Count  int64                   `json:"count"`
	Amount decimal.Decimal         `json:"amount"`
}

// CommissionStats aggregates a user's commissions
type CommissionStats struct {
	ByStatus    []StatusTotal       `json:"by_status"`
	TotalEarned decimal.Decimal     `json:"total_earned"`
	Pending     decimal.Decimal     `json:"pending"`
	Approved    decimal.Decimal     `json:"approved"`
	Paid        decimal.Decimal     `json:"paid"`
	Recent      []models.Commission `json:"recent"`
}

// GetUserCommissionStats sums a user's commissions by status (Cancelled excluded) and lists the 10 most recent
func (s *CommissionService) GetUserCommissionStats(ctx context.Context, userID uint) (*CommissionStats, error) {
	db := s.db.WithContext(ctx)

	var totals []StatusTotal
	if err := db.Model(&models.Commission{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Where("user_id = ? AND status <> ?", userID, models.CommissionCancelled).
		Group("status").
		Order("status").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate commissions: %w", err)
	}

	stats := &CommissionStats{ByStatus: totals, TotalEarned: decimal.Zero, Pending: decimal.Zero, Approved: decimal.Zero, Paid: decimal.Zero}
	for i := range stats.ByStatus {
		total := &stats.ByStatus[i]
		total.Amount = roundMoney(total.Amount)
		stats.TotalEarned = stats.TotalEarned.Add(total.Amount)
		switch total.Status {
		case models.CommissionPending:
			stats.Pending = total.Amount
		case models.CommissionApproved:
			stats.Approved = total.Amount
		case models.CommissionPaid:
			stats.Paid = total.Amount
		}
	}
	if stats.ByStatus == nil {
		stats.ByStatus = []StatusTotal{}
	}

	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(10).
		Find(&stats.Recent).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent commissions: %w", err)
	}
	return stats, nil
}

// CommissionFilter narrows ListCommissions
type CommissionFilter struct {
	Status models.CommissionStatus `form:"status"`
	Type   models.CommissionType   `form:"type"`
	UserID uint                    `form:"user_id"`
	Page
}

// ListCommissions returns commissions newest first
func (s *CommissionService) ListCommissions(ctx context.Context, filter CommissionFilter) (PageResult[models.Commission], error) {
	page := filter.Page.Normalize()
	query := s.db.WithContext(ctx).Model(&models.Commission{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return PageResult[models.Commission]{}, fmt.Errorf("failed to count commissions: %w", err)
	}

	var commissions []models.Commission
	if err := page.apply(query.Preload("User").Order("created_at DESC, id DESC")).Find(&commissions).Error; err != nil {
		return PageResult[models.Commission]{}, fmt.Errorf("failed to list commissions: %w", err)
	}
	return newPageResult(commissions, total, page), nil
}

func (s *CommissionService) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

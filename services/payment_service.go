package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/pouch-store-api/models"
	"gorm.io/gorm"
)

// PaymentService records payments and bridges manual confirmations into the order lifecycle
type PaymentService struct {
	db    *gorm.DB
	tasks *TaskService
}

// NewPaymentService creates a new payment service instance
func NewPaymentService(db *gorm.DB) *PaymentService {
	return &PaymentService{db: db, tasks: NewTaskService(db)}
}

// CreatePayment records the payment row for a new order. Manual methods start in
// PendingConfirmation and open a PaymentReview task.
func (s *PaymentService) CreatePayment(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Payment, error) {
	conn := s.conn(ctx, tx)

	status := models.PaymentPending
	if order.PaymentMethod.IsManual() {
		status = models.PaymentPendingConfirmation
	}

	payment := models.Payment{
		OrderID:       order.ID,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.TotalAmount,
		Status:        status,
	}
	if err := conn.Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if status == models.PaymentPendingConfirmation {
		title := fmt.Sprintf("Verify %s payment of $%s", order.PaymentMethod, order.TotalAmount.StringFixed(2))
		if _, err := s.tasks.CreateTask(ctx, tx, title, "", models.TaskPaymentReview, models.RelatedToOrder(order.ID)); err != nil {
			return nil, err
		}
	}
	return &payment, nil
}

// ManualConfirmation carries the admin-supplied details of a manual payment
type ManualConfirmation struct {
	OrderID       uuid.UUID
	TransactionID string
	AdminUserID   uint
	Notes         string
	SenderName    string
}

// ConfirmManualPayment completes a PendingConfirmation payment, moves the order to Processing
// with a Completed payment status, and closes the order's PaymentReview task.
// It fails with ErrPaymentNotAwaitingConfirmation and changes nothing when no such payment exists.
func (s *PaymentService) ConfirmManualPayment(ctx context.Context, req ManualConfirmation) (*models.Order, error) {
	if req.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrValidation)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", req.OrderID).Error; err != nil {
			return notFound(err, "order")
		}

		var payment models.Payment
		err := tx.Where("order_id = ? AND status = ?", req.OrderID, models.PaymentPendingConfirmation).
			Order("created_at DESC").
			First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaymentNotAwaitingConfirmation
		}
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
		}

		now := time.Now()
		if err := tx.Model(&payment).Updates(map[string]interface{}{
			"status":         models.PaymentCompleted,
			"transaction_id": req.TransactionID,
			"sender_name":    req.SenderName,
			"notes":          req.Notes,
			"confirmed_by":   req.AdminUserID,
			"confirmed_at":   now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}

		if err := tx.Model(&order).Updates(map[string]interface{}{
			"status":         models.OrderProcessing,
			"payment_status": models.PaymentCompleted,
		}).Error; err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		order.Status = models.OrderProcessing
		order.PaymentStatus = models.PaymentCompleted

		notes := fmt.Sprintf("%s payment confirmed (transaction %s)", payment.PaymentMethod, req.TransactionID)
		if err := appendHistory(tx, order.ID, models.OrderProcessing, notes, &req.AdminUserID); err != nil {
			return err
		}

		_, err = s.tasks.CompleteTasks(ctx, tx, models.TaskPaymentReview, models.RelatedToOrder(order.ID))
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Manual payment confirmed for order %s by admin %d", order.ID, req.AdminUserID)
	return &order, nil
}

// MarkPaymentFailed rejects a PendingConfirmation payment and records the failure on the order
func (s *PaymentService) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, reason string, adminUserID uint) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("order_id = ? AND status = ?", orderID, models.PaymentPendingConfirmation).First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaymentNotAwaitingConfirmation
		}
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}

		now := time.Now()
		if err := tx.Model(&payment).Updates(map[string]interface{}{
			"status":       models.PaymentFailed,
			"notes":        reason,
			"confirmed_by": adminUserID,
			"confirmed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		payment.Status = models.PaymentFailed
		payment.Notes = reason

		if err := tx.Model(&models.Order{}).Where("id = ?", orderID).
			Update("payment_status", models.PaymentFailed).Error; err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}

		_, err = s.tasks.CompleteTasks(ctx, tx, models.TaskPaymentReview, models.RelatedToOrder(orderID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentForOrder returns the latest payment of an order
func (s *PaymentService) GetPaymentForOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at DESC, id DESC").First(&payment).Error; err != nil {
		return nil, notFound(err, "payment")
	}
	return &payment, nil
}

func (s *PaymentService) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

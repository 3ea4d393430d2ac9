package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderService owns the order lifecycle from checkout through fulfillment
type OrderService struct {
	db          *gorm.DB
	commissions *CommissionService
	payments    *PaymentService
	tasks       *TaskService
}

// NewOrderService creates a new order service instance
func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{
		db:          db,
		commissions: NewCommissionService(db),
		payments:    NewPaymentService(db),
		tasks:       NewTaskService(db),
	}
}

// OrderLine is one requested line of a new order
type OrderLine struct {
	VariationID uint
	Quantity    int
	Price       decimal.Decimal
}

// CreateOrderParams holds everything needed to place an order
type CreateOrderParams struct {
	UserID          uint
	Items           []OrderLine
	ShippingAddress models.Address
	BillingAddress  models.Address
	PaymentMethod   models.PaymentMethod
	DiscountCode    string
	ReferralCode    string
	IsWholesale     bool
}

func (p CreateOrderParams) validate() error {
	if p.UserID == 0 {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: an order needs at least one item", ErrValidation)
	}
	if !p.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", ErrValidation, p.PaymentMethod)
	}
	for i, item := range p.Items {
		if item.VariationID == 0 {
			return fmt.Errorf("%w: item %d has no variation", ErrValidation, i+1)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i+1)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: item %d price cannot be negative", ErrValidation, i+1)
		}
	}
	return nil
}

// CreateOrder inserts the order, its items, its payment and its first history row in one
// transaction. When the purchaser was referred, the referrer's commission is created in the
// same transaction. Nothing is persisted if any step fails.
func (s *OrderService) CreateOrder(ctx context.Context, params CreateOrderParams) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.createOrder(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Order %s placed by user %d for $%s", order.ID, order.UserID, order.TotalAmount.StringFixed(2))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, tx *gorm.DB, params CreateOrderParams) (*models.Order, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	var purchaser models.User
	if err := tx.First(&purchaser, params.UserID).Error; err != nil {
		return nil, notFound(err, "user")
	}
	if err := s.attributeReferral(tx, &purchaser, params.ReferralCode); err != nil {
		return nil, err
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(params.Items))
	for _, line := range params.Items {
		item := models.OrderItem{VariationID: line.VariationID, Quantity: line.Quantity, Price: roundMoney(line.Price)}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}

	order := models.Order{
		UserID:           params.UserID,
		Status:           models.OrderPending,
		PaymentStatus:    models.PaymentPending,
		PaymentMethod:    params.PaymentMethod,
		TotalAmount:      roundMoney(total),
		CommissionAmount: decimal.Zero,
		ShippingAddress:  params.ShippingAddress,
		BillingAddress:   params.BillingAddress,
		DiscountCode:     params.DiscountCode,
		ReferralCode:     params.ReferralCode,
		IsWholesale:      params.IsWholesale,
	}
	if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := tx.Create(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}
	order.Items = items

	if err := appendHistory(tx, order.ID, models.OrderPending, "Order placed", &params.UserID); err != nil {
		return nil, err
	}

	if _, err := s.payments.CreatePayment(ctx, tx, &order); err != nil {
		return nil, err
	}

	if purchaser.ReferredBy != nil && order.TotalAmount.IsPositive() {
		if _, err := s.commissions.CreateCommission(ctx, tx, *referralCommissionParams(&order, *purchaser.ReferredBy)); err != nil {
			return nil, err
		}
	}

	return &order, nil
}

// attributeReferral links a not-yet-referred purchaser to the owner of the referral code
// supplied at checkout. Codes that are unknown or belong to the purchaser are ignored.
func (s *OrderService) attributeReferral(tx *gorm.DB, purchaser *models.User, code string) error {
	code = strings.TrimSpace(code)
	if code == "" || purchaser.ReferredBy != nil || strings.EqualFold(code, purchaser.ReferralCode) {
		return nil
	}

	var referrer models.User
	err := tx.Where("referral_code = ?", strings.ToUpper(code)).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve referral code: %w", err)
	}

	if err := tx.Model(&models.User{}).Where("id = ?", purchaser.ID).Update("referred_by", referrer.ID).Error; err != nil {
		return fmt.Errorf("failed to attribute referral: %w", err)
	}
	purchaser.ReferredBy = &referrer.ID
	return nil
}

// CheckoutParams holds the checkout request of a customer
type CheckoutParams struct {
	UserID          uint
	ShippingAddress models.Address
	BillingAddress  models.Address
	PaymentMethod   models.PaymentMethod
	IsWholesale     bool
	DiscountCode    string
	ReferralCode    string
}

// Checkout turns the user's cart into an order: it validates minimums and stock, snapshots
// current prices, creates the order, deducts inventory and clears the cart atomically.
func (s *OrderService) Checkout(ctx context.Context, params CheckoutParams) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if params.IsWholesale {
			var user models.User
			if err := tx.First(&user, params.UserID).Error; err != nil {
				return notFound(err, "user")
			}
			if !user.WholesaleEligible {
				return fmt.Errorf("%w: wholesale ordering requires an approved wholesale application", ErrForbidden)
			}
		}

		lines, err := loadCartLines(tx, params.UserID)
		if err != nil {
			return err
		}
		active := purchasableLines(lines)
		if len(active) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrValidation)
		}

		if check := ValidateQuantities(active, params.IsWholesale); !check.IsValid {
			return fmt.Errorf("%w: %s", ErrValidation, check.Message)
		}
		shortfalls, err := inventoryShortfalls(tx, active)
		if err != nil {
			return err
		}
		if len(shortfalls) > 0 {
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(shortfalls, "; "))
		}

		items := make([]OrderLine, 0, len(active))
		for _, line := range active {
			items = append(items, OrderLine{
				VariationID: line.VariationID,
				Quantity:    line.Quantity,
				Price:       line.Variation.UnitPrice(params.IsWholesale),
			})
		}

		order, err = s.createOrder(ctx, tx, CreateOrderParams{
			UserID:          params.UserID,
			Items:           items,
			ShippingAddress: params.ShippingAddress,
			BillingAddress:  params.BillingAddress,
			PaymentMethod:   params.PaymentMethod,
			DiscountCode:    params.DiscountCode,
			ReferralCode:    params.ReferralCode,
			IsWholesale:     params.IsWholesale,
		})
		if err != nil {
			return err
		}

		for _, item := range items {
			if err := deductStock(tx, item.VariationID, item.Quantity); err != nil {
				return err
			}
		}
		return clearCart(tx, params.UserID)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Checkout completed for user %d: order %s ($%s)", params.UserID, order.ID, order.TotalAmount.StringFixed(2))
	return order, nil
}

// UpdateOrderStatus moves an order to newStatus if the allow-list permits it and appends one history row
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus models.OrderStatus, notes string, adminUserID *uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return notFound(err, "order")
		}
		return s.transition(ctx, tx, &order, newStatus, notes, adminUserID)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels a non-terminal order and cancels its unpaid commissions
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, notes string, actorID *uint) (*models.Order, error) {
	if notes == "" {
		notes = "Order cancelled"
	}
	return s.UpdateOrderStatus(ctx, orderID, models.OrderCancelled, notes, actorID)
}

// transition applies a status change to an order loaded inside tx, with its side effects
func (s *OrderService) transition(ctx context.Context, tx *gorm.DB, order *models.Order, next models.OrderStatus, notes string, actorID *uint) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown order status %q", ErrValidation, next)
	}
	if !order.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidTransition, order.Status, next)
	}

	updates := map[string]interface{}{"status": next}
	if next == models.OrderPaymentReceived {
		updates["payment_status"] = models.PaymentCompleted
	}

	// Conditional on the loaded status so a concurrent transition loses cleanly
	result := tx.Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, order.Status).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s changed concurrently", ErrConflict, order.ID)
	}
	previous := order.Status
	order.Status = next
	if next == models.OrderPaymentReceived {
		order.PaymentStatus = models.PaymentCompleted
	}

	if err := appendHistory(tx, order.ID, next, notes, actorID); err != nil {
		return err
	}

	switch next {
	case models.OrderPaymentReceived:
		if err := tx.Model(&models.Payment{}).
			Where("order_id = ? AND status IN ?", order.ID, []models.PaymentStatus{models.PaymentPending, models.PaymentPendingConfirmation}).
			Update("status", models.PaymentCompleted).Error; err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}
		if _, err := s.tasks.CompleteTasks(ctx, tx, models.TaskPaymentReview, models.RelatedToOrder(order.ID)); err != nil {
			return err
		}

	case models.OrderFulfilled:
		if order.DistributorID == nil {
			break
		}
		commission, err := s.commissions.CalculateCommissionForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if commission != nil && commission.Type == models.CommissionDistributorFulfillment {
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
				Update("commission_amount", commission.Amount).Error; err != nil {
				return fmt.Errorf("failed to store commission amount: %w", err)
			}
			order.CommissionAmount = commission.Amount
		}
		if _, err := s.tasks.CompleteTasks(ctx, tx, models.TaskFulfillment, models.RelatedToOrder(order.ID)); err != nil {
			return err
		}

	case models.OrderCancelled:
		cancelled, err := s.commissions.CancelCommissionsForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if cancelled > 0 {
			log.Printf("Cancelled %d commissions for order %s", cancelled, order.ID)
		}
		if _, err := s.tasks.CompleteTasks(ctx, tx, models.TaskPaymentReview, models.RelatedToOrder(order.ID)); err != nil {
			return err
		}
		if _, err := s.tasks.CompleteTasks(ctx, tx, models.TaskFulfillment, models.RelatedToOrder(order.ID)); err != nil {
			return err
		}
	}

	log.Printf("Order %s: %s -> %s", order.ID, previous, next)
	return nil
}

// AssignDistributor sets the distributor of an order. A Processing order moves to Assigned;
// commission is deferred to fulfillment.
func (s *OrderService) AssignDistributor(ctx context.Context, orderID uuid.UUID, distributorID uint, adminUserID *uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var distributor models.User
		if err := tx.First(&distributor, distributorID).Error; err != nil {
			return notFound(err, "distributor")
		}
		if distributor.Role != models.RoleDistributor {
			return fmt.Errorf("%w: user %d is not a distributor", ErrValidation, distributorID)
		}
		if !distributor.IsActive() {
			return fmt.Errorf("%w: distributor %d is not active", ErrValidation, distributorID)
		}

		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return notFound(err, "order")
		}
		if order.Status != models.OrderProcessing && order.Status != models.OrderAssigned {
			return fmt.Errorf("%w: cannot assign a distributor to a %s order", ErrInvalidTransition, order.Status)
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("distributor_id", distributorID).Error; err != nil {
			return fmt.Errorf("failed to assign distributor: %w", err)
		}
		order.DistributorID = &distributorID

		if order.Status == models.OrderProcessing {
			notes := fmt.Sprintf("Assigned to distributor %s", distributor.Name)
			if err := s.transition(ctx, tx, &order, models.OrderAssigned, notes, adminUserID); err != nil {
				return err
			}
		}

		if _, err := s.tasks.CompleteTasks(ctx, tx, models.TaskFulfillment, models.RelatedToOrder(order.ID)); err != nil {
			return err
		}
		title := fmt.Sprintf("Fulfill order %s", order.ID)
		_, err := s.tasks.CreateTask(ctx, tx, title, fmt.Sprintf("Assigned to %s", distributor.Email), models.TaskFulfillment, models.RelatedToOrder(order.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FulfillmentData is the shipping record of a fulfilled order
type FulfillmentData struct {
	TrackingNumber string
	Carrier        string
	ProofKey       string
	Notes          string
}

// RecordFulfillment stores the shipping record, moves the order to Fulfilled and triggers the
// fulfillment commission
func (s *OrderService) RecordFulfillment(ctx context.Context, orderID uuid.UUID, data FulfillmentData, actorID *uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return notFound(err, "order")
		}
		if !order.Status.CanTransitionTo(models.OrderFulfilled) {
			return fmt.Errorf("%w: cannot fulfill a %s order", ErrInvalidTransition, order.Status)
		}

		fulfillment := models.OrderFulfillment{
			OrderID:        order.ID,
			DistributorID:  order.DistributorID,
			TrackingNumber: data.TrackingNumber,
			Carrier:        data.Carrier,
			ProofKey:       data.ProofKey,
			Notes:          data.Notes,
			RecordedBy:     actorID,
			FulfilledAt:    time.Now(),
		}
		if err := tx.Create(&fulfillment).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: order %s already has a fulfillment record", ErrConflict, order.ID)
			}
			return fmt.Errorf("failed to record fulfillment: %w", err)
		}

		notes := "Order fulfilled"
		if data.TrackingNumber != "" {
			notes = fmt.Sprintf("Shipped via %s, tracking %s", data.Carrier, data.TrackingNumber)
		}
		if err := s.transition(ctx, tx, &order, models.OrderFulfilled, notes, actorID); err != nil {
			return err
		}
		order.Fulfillment = &fulfillment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderFilter narrows order listings
type OrderFilter struct {
	Status        models.OrderStatus `form:"status"`
	From          *time.Time         `form:"from" time_format:"2006-01-02"`
	To            *time.Time         `form:"to" time_format:"2006-01-02"`
	UserID        uint               `form:"user_id"`
	DistributorID uint               `form:"distributor_id"`
	Page
}

func (f OrderFilter) apply(query *gorm.DB) *gorm.DB {
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at < ?", f.To.AddDate(0, 0, 1))
	}
	if f.UserID != 0 {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.DistributorID != 0 {
		query = query.Where("distributor_id = ?", f.DistributorID)
	}
	return query
}

// GetUserOrders returns one page of a customer's orders, newest first
func (s *OrderService) GetUserOrders(ctx context.Context, userID uint, filter OrderFilter) (PageResult[models.Order], error) {
	filter.UserID = userID
	filter.DistributorID = 0
	return s.listOrders(ctx, filter)
}

// GetAdminOrders returns one page of all orders matching the filter, newest first
func (s *OrderService) GetAdminOrders(ctx context.Context, filter OrderFilter) (PageResult[models.Order], error) {
	return s.listOrders(ctx, filter)
}

// GetDistributorOrders returns one page of the orders assigned to a distributor
func (s *OrderService) GetDistributorOrders(ctx context.Context, distributorID uint, filter OrderFilter) (PageResult[models.Order], error) {
	filter.DistributorID = distributorID
	filter.UserID = 0
	return s.listOrders(ctx, filter)
}

func (s *OrderService) listOrders(ctx context.Context, filter OrderFilter) (PageResult[models.Order], error) {
	page := filter.Page.Normalize()
	query := filter.apply(s.db.WithContext(ctx).Model(&models.Order{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return PageResult[models.Order]{}, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []models.Order
	if err := page.apply(query.Preload("Items").Order("created_at DESC")).Find(&orders).Error; err != nil {
		return PageResult[models.Order]{}, fmt.Errorf("failed to list orders: %w", err)
	}
	return newPageResult(orders, total, page), nil
}

// GetOrder returns an order with its items, parties, fulfillment and history
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items.Variation.Product").
		Preload("User").
		Preload("Distributor").
		Preload("Fulfillment").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "id = ?", orderID).Error; err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

// GetOrderHistory returns the status history of an order, oldest first
func (s *OrderService) GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}

	var history []models.OrderStatusHistory
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to load order history: %w", err)
	}
	return history, nil
}

// appendHistory writes one status history row
func appendHistory(tx *gorm.DB, orderID uuid.UUID, status models.OrderStatus, notes string, changedBy *uint) error {
	entry := models.OrderStatusHistory{OrderID: orderID, Status: status, Notes: notes, ChangedBy: changedBy}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append order history: %w", err)
	}
	return nil
}

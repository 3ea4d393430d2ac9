package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/kendall-kelly/pouch-store-api/cache"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
	"github.com/kendall-kelly/pouch-store-api/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// OrderIntegrationTestSuite runs the order services together against one database
type OrderIntegrationTestSuite struct {
	suite.Suite
	db          *gorm.DB
	orders      *services.OrderService
	payments    *services.PaymentService
	commissions *services.CommissionService
	products    *services.ProductService
	tasks       *services.TaskService

	admin     *models.User
	partner   *models.User
	customer  *models.User
	variation *models.ProductVariation
}

func (suite *OrderIntegrationTestSuite) SetupSuite() {
	testutil.MustSetTestEnvironment(suite.T())
	services.BcryptCost = bcrypt.MinCost
}

// SetupTest gives every test a fresh database with a referred customer and 50 units in stock
func (suite *OrderIntegrationTestSuite) SetupTest() {
	t := suite.T()
	suite.db = testutil.NewTestDB(t)
	suite.orders = services.NewOrderService(suite.db)
	suite.payments = services.NewPaymentService(suite.db)
	suite.commissions = services.NewCommissionService(suite.db)
	suite.products = services.NewProductService(suite.db, cache.NewMemoryStore(0))
	suite.tasks = services.NewTaskService(suite.db)

	suite.admin = testutil.CreateUser(t, suite.db, "Admin", models.RoleAdmin)
	suite.partner = testutil.CreateUser(t, suite.db, "Partner", models.RoleReferralPartner)
	suite.customer = testutil.CreateReferredUser(t, suite.db, "Customer", suite.partner)
	suite.variation = testutil.CreateVariation(t, suite.db, "8.00", 50)
}

func (suite *OrderIntegrationTestSuite) checkout(quantity int, method models.PaymentMethod) *models.Order {
	testutil.AddToCart(suite.T(), suite.db, suite.customer.ID, suite.variation.ID, quantity)
	order, err := suite.orders.Checkout(context.Background(), services.CheckoutParams{
		UserID:          suite.customer.ID,
		ShippingAddress: testutil.TestAddress(),
		PaymentMethod:   method,
	})
	suite.Require().NoError(err)
	return order
}

func (suite *OrderIntegrationTestSuite) referralCommissions() []models.Commission {
	var commissions []models.Commission
	suite.Require().NoError(suite.db.Where("user_id = ?", suite.partner.ID).Find(&commissions).Error)
	return commissions
}

func (suite *OrderIntegrationTestSuite) TestCheckoutDeductsStockAndClearsCart() {
	ctx := context.Background()
	order := suite.checkout(10, models.PaymentMethodCard)

	suite.Equal(models.OrderPending, order.Status)
	suite.True(order.TotalAmount.Equal(decimal.RequireFromString("80.00")))

	stock, err := suite.products.GetTotalStock(ctx, suite.variation.ID)
	suite.Require().NoError(err)
	suite.Equal(40, stock)

	var cartLines int64
	suite.Require().NoError(suite.db.Model(&models.CartItem{}).Where("user_id = ?", suite.customer.ID).Count(&cartLines).Error)
	suite.Zero(cartLines)

	commissions := suite.referralCommissions()
	suite.Require().Len(commissions, 1)
	suite.Equal(models.CommissionOrderReferral, commissions[0].Type)
	suite.True(commissions[0].Amount.Equal(decimal.RequireFromString("4.00")))
}

func (suite *OrderIntegrationTestSuite) TestCheckoutRollsBackOnShortfall() {
	ctx := context.Background()
	testutil.AddToCart(suite.T(), suite.db, suite.customer.ID, suite.variation.ID, 60)

	_, err := suite.orders.Checkout(ctx, services.CheckoutParams{
		UserID:          suite.customer.ID,
		ShippingAddress: testutil.TestAddress(),
		PaymentMethod:   models.PaymentMethodCard,
	})
	suite.ErrorIs(err, services.ErrValidation)

	stock, err := suite.products.GetTotalStock(ctx, suite.variation.ID)
	suite.Require().NoError(err)
	suite.Equal(50, stock)

	var orders int64
	suite.Require().NoError(suite.db.Model(&models.Order{}).Count(&orders).Error)
	suite.Zero(orders)
	suite.Empty(suite.referralCommissions())
}

func (suite *OrderIntegrationTestSuite) TestManualPaymentLifecycle() {
	ctx := context.Background()
	order := suite.checkout(5, models.PaymentMethodBitcoin)

	open, err := suite.tasks.ListTasks(ctx, models.TaskOpen, models.TaskPaymentReview)
	suite.Require().NoError(err)
	suite.Require().Len(open, 1)

	payment, err := suite.payments.GetPaymentForOrder(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Equal(models.PaymentPendingConfirmation, payment.Status)

	confirmed, err := suite.payments.ConfirmManualPayment(ctx, services.ManualConfirmation{
		OrderID:       order.ID,
		TransactionID: "btc-tx-1",
		AdminUserID:   suite.admin.ID,
	})
	suite.Require().NoError(err)
	suite.Equal(models.OrderProcessing, confirmed.Status)
	suite.Equal(models.PaymentCompleted, confirmed.PaymentStatus)

	open, err = suite.tasks.ListTasks(ctx, models.TaskOpen, models.TaskPaymentReview)
	suite.Require().NoError(err)
	suite.Empty(open, "confirming the payment closes its review task")

	_, err = suite.payments.ConfirmManualPayment(ctx, services.ManualConfirmation{
		OrderID:       order.ID,
		TransactionID: "btc-tx-1",
		AdminUserID:   suite.admin.ID,
	})
	suite.ErrorIs(err, services.ErrPaymentNotAwaitingConfirmation)
}

func (suite *OrderIntegrationTestSuite) TestCancellationCancelsOpenCommissions() {
	ctx := context.Background()
	order := suite.checkout(5, models.PaymentMethodETransfer)

	cancelled, err := suite.orders.CancelOrder(ctx, order.ID, "", &suite.admin.ID)
	suite.Require().NoError(err)
	suite.Equal(models.OrderCancelled, cancelled.Status)

	commissions := suite.referralCommissions()
	suite.Require().Len(commissions, 1)
	suite.Equal(models.CommissionCancelled, commissions[0].Status)

	open, err := suite.tasks.ListTasks(ctx, models.TaskOpen, models.TaskPaymentReview)
	suite.Require().NoError(err)
	suite.Empty(open)

	_, err = suite.orders.UpdateOrderStatus(ctx, order.ID, models.OrderPaymentReceived, "", nil)
	suite.ErrorIs(err, services.ErrInvalidTransition, "cancelled orders are terminal")
}

func (suite *OrderIntegrationTestSuite) TestFulfillmentPaysDistributor() {
	ctx := context.Background()
	distributor := testutil.CreateUser(suite.T(), suite.db, "Distributor", models.RoleDistributor)
	order := suite.checkout(10, models.PaymentMethodCard)

	for _, status := range []models.OrderStatus{models.OrderPaymentReceived, models.OrderProcessing} {
		_, err := suite.orders.UpdateOrderStatus(ctx, order.ID, status, "", nil)
		suite.Require().NoError(err)
	}
	assigned, err := suite.orders.AssignDistributor(ctx, order.ID, distributor.ID, &suite.admin.ID)
	suite.Require().NoError(err)
	suite.Equal(models.OrderAssigned, assigned.Status)

	fulfilled, err := suite.orders.RecordFulfillment(ctx, order.ID, services.FulfillmentData{
		TrackingNumber: "CP-1",
		Carrier:        "Canada Post",
	}, &distributor.ID)
	suite.Require().NoError(err)
	suite.Equal(models.OrderFulfilled, fulfilled.Status)

	var commission models.Commission
	suite.Require().NoError(suite.db.Where("user_id = ? AND type = ?", distributor.ID, models.CommissionDistributorFulfillment).First(&commission).Error)
	suite.True(commission.Amount.Equal(decimal.RequireFromString("8.00")))
	suite.Equal(models.CommissionPending, commission.Status)

	history, err := suite.orders.GetOrderHistory(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Len(history, 5)
}

func (suite *OrderIntegrationTestSuite) TestConcurrentTransitionsApplyOnce() {
	ctx := context.Background()
	order := suite.checkout(5, models.PaymentMethodCard)

	const attempts = 5
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.orders.UpdateOrderStatus(ctx, order.ID, models.OrderPaymentReceived, "", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	suite.Equal(1, succeeded)

	history, err := suite.orders.GetOrderHistory(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Len(history, 2)
}

func TestOrderIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(OrderIntegrationTestSuite))
}

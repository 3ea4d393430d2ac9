package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kendall-kelly/pouch-store-api/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// BcryptCost is the work factor for password hashes. Tests lower it.
var BcryptCost = 12

const minPasswordLength = 8

var fieldValidator = validator.New()

// UserService manages accounts, referrals and wholesale applications
type UserService struct {
	db    *gorm.DB
	tasks *TaskService
}

// NewUserService creates a new user service instance
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db, tasks: NewTaskService(db)}
}

// RegisterParams holds a sign-up request
type RegisterParams struct {
	Email        string
	Password     string
	Name         string
	Phone        string
	ReferralCode string
}

// Register creates an active Customer. An unknown referral code is rejected.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	email := normalizeEmail(params.Email)
	if err := fieldValidator.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	if len(params.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hash, err := hashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(params.Name),
		Phone:        strings.TrimSpace(params.Phone),
		Role:         models.RoleCustomer,
		Status:       models.UserStatusActive,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if code := strings.TrimSpace(params.ReferralCode); code != "" {
			var referrer models.User
			if err := tx.Where("referral_code = ?", strings.ToUpper(code)).First(&referrer).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: unknown referral code %q", ErrValidation, code)
				}
				return fmt.Errorf("failed to resolve referral code: %w", err)
			}
			user.ReferredBy = &referrer.ID
		}

		referralCode, err := uniqueReferralCode(tx)
		if err != nil {
			return err
		}
		user.ReferralCode = referralCode

		if err := tx.Create(&user).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: an account with this email already exists", ErrConflict)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate checks credentials and records the login time
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !user.IsActive() {
		return nil, fmt.Errorf("%w: account is %s", ErrForbidden, strings.ToLower(string(user.Status)))
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now
	return &user, nil
}

// GetUser returns a user by id
func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// ProfileUpdate holds the fields a user can change on their own profile
type ProfileUpdate struct {
	Name  *string
	Phone *string
	Email *string
}

// UpdateProfile changes name, phone or email
func (s *UserService) UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if update.Name != nil {
		updates["name"] = strings.TrimSpace(*update.Name)
	}
	if update.Phone != nil {
		updates["phone"] = strings.TrimSpace(*update.Phone)
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if err := fieldValidator.Var(email, "required,email"); err != nil {
			return nil, fmt.Errorf("%w: a valid email is required", ErrValidation)
		}
		updates["email"] = email
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: an account with this email already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.GetUser(ctx, id)
}

// ChangePassword replaces the password after checking the current one
func (s *UserService) ChangePassword(ctx context.Context, id uint, current, next string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return fmt.Errorf("%w: current password is incorrect", ErrUnauthorized)
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	return nil
}

// UserFilter narrows the admin user listing
type UserFilter struct {
	Role   models.UserRole   `form:"role"`
	Status models.UserStatus `form:"status"`
	Search string            `form:"search"`
	Page
}

// ListUsers returns one page of users, newest first
func (s *UserService) ListUsers(ctx context.Context, filter UserFilter) (PageResult[models.User], error) {
	page := filter.Page.Normalize()
	query := s.db.WithContext(ctx).Model(&models.User{})
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return PageResult[models.User]{}, fmt.Errorf("failed to count users: %w", err)
	}
	var users []models.User
	if err := page.apply(query.Order("created_at DESC, id DESC")).Find(&users).Error; err != nil {
		return PageResult[models.User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	return newPageResult(users, total, page), nil
}

// SetStatus activates or suspends an account. Leaving Active also ends the user's sessions.
func (s *UserService) SetStatus(ctx context.Context, id uint, status models.UserStatus) (*models.User, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if status != models.UserStatusActive {
		if _, err := s.RevokeSessions(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.setField(ctx, id, "status", status)
}

// RevokeSessions invalidates every token issued to the user so far
func (s *UserService) RevokeSessions(ctx context.Context, id uint) (*models.User, error) {
	return s.setField(ctx, id, "tokens_valid_after", time.Now())
}

// SetRole changes the role of an account
func (s *UserService) SetRole(ctx context.Context, id uint, role models.UserRole) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return s.setField(ctx, id, "role", role)
}

func (s *UserService) setField(ctx context.Context, id uint, column string, value interface{}) (*models.User, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update user %s: %w", column, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	return s.GetUser(ctx, id)
}

// WholesaleApplicationInput is what a customer submits to become a wholesale buyer
type WholesaleApplicationInput struct {
	BusinessName string
	TaxID        string
	Message      string
}

// ApplyForWholesale files an application and opens a review task. Only one pending application per user.
func (s *UserService) ApplyForWholesale(ctx context.Context, userID uint, input WholesaleApplicationInput) (*models.WholesaleApplication, error) {
	if strings.TrimSpace(input.BusinessName) == "" {
		return nil, fmt.Errorf("%w: business name is required", ErrValidation)
	}

	var application models.WholesaleApplication
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user")
		}
		if user.WholesaleEligible {
			return fmt.Errorf("%w: account is already wholesale eligible", ErrConflict)
		}

		var pending int64
		if err := tx.Model(&models.WholesaleApplication{}).
			Where("user_id = ? AND status = ?", userID, models.ApplicationPending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("failed to check applications: %w", err)
		}
		if pending > 0 {
			return fmt.Errorf("%w: an application is already pending review", ErrConflict)
		}

		application = models.WholesaleApplication{
			UserID:       userID,
			BusinessName: strings.TrimSpace(input.BusinessName),
			TaxID:        strings.TrimSpace(input.TaxID),
			Message:      input.Message,
			Status:       models.ApplicationPending,
		}
		if err := tx.Create(&application).Error; err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}

		title := fmt.Sprintf("Review wholesale application from %s", application.BusinessName)
		_, err := s.tasks.CreateTask(ctx, tx, title, user.Email, models.TaskWholesaleReview, models.RelatedToWholesaleApplication(application.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &application, nil
}

// ReviewWholesaleApplication approves or rejects a pending application and closes its review task.
// Approval makes the user wholesale eligible with the Wholesale Buyer role.
func (s *UserService) ReviewWholesaleApplication(ctx context.Context, id uint, approve bool, notes string, adminUserID uint) (*models.WholesaleApplication, error) {
	var application models.WholesaleApplication
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&application, id).Error; err != nil {
			return notFound(err, "wholesale application")
		}
		if application.Status != models.ApplicationPending {
			return fmt.Errorf("%w: application was already %s", ErrInvalidTransition, strings.ToLower(string(application.Status)))
		}

		status := models.ApplicationRejected
		if approve {
			status = models.ApplicationApproved
		}
		now := time.Now()
		if err := tx.Model(&application).Updates(map[string]interface{}{
			"status":       status,
			"reviewed_by":  adminUserID,
			"reviewed_at":  now,
			"review_notes": notes,
		}).Error; err != nil {
			return fmt.Errorf("failed to update application: %w", err)
		}
		application.Status = status
		application.ReviewedBy = &adminUserID
		application.ReviewedAt = &now
		application.ReviewNotes = notes

		if approve {
			if err := tx.Model(&models.User{}).Where("id = ?", application.UserID).Updates(map[string]interface{}{
				"wholesale_eligible": true,
				"role":               models.RoleWholesaleBuyer,
			}).Error; err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
		}

		_, err := s.tasks.CompleteTasks(ctx, tx, models.TaskWholesaleReview, models.RelatedToWholesaleApplication(application.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &application, nil
}

// ListWholesaleApplications returns applications, optionally by status, oldest first
func (s *UserService) ListWholesaleApplications(ctx context.Context, status models.ApplicationStatus) ([]models.WholesaleApplication, error) {
	query := s.db.WithContext(ctx).Preload("User").Order("created_at ASC, id ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var applications []models.WholesaleApplication
	if err := query.Find(&applications).Error; err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return applications, nil
}

// GetReferrals returns the users referred by userID
func (s *UserService) GetReferrals(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Where("referred_by = ?", userID).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	return users, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// uniqueReferralCode returns an unused 8 character code
func uniqueReferralCode(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		var count int64
		if err := tx.Model(&models.User{}).Unscoped().Where("referral_code = ?", code).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check referral code: %w", err)
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique referral code")
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/utils"
)

// UserService handles accounts and profiles
type UserService struct {
	db          *sql.DB
	adminDomain string
}

// NewUserService creates a new user service
func NewUserService(db *sql.DB, adminDomain string) *UserService {
	return &UserService{db: db, adminDomain: adminDomain}
}

// SignUp creates a customer account and its profile. Admin-domain addresses
// are refused here and can only be created with EnsureAdmin.
func (s *UserService) SignUp(ctx context.Context, req *models.SignUpRequest) (*models.CurrentUser, error) {
	if IsAdminEmail(req.Email, s.adminDomain) {
		return nil, fmt.Errorf("%w: %s accounts are created by an administrator", ErrForbidden, s.adminDomain)
	}
	return s.createPasswordAccount(ctx, req)
}

func (s *UserService) createPasswordAccount(ctx context.Context, req *models.SignUpRequest) (*models.CurrentUser, error) {
	email := utils.NormalizeEmail(req.Email)
	if !utils.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if problems := utils.ValidatePassword(req.Password); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, ", "))
	}

	firstName := utils.SanitizeString(req.FirstName)
	lastName := utils.SanitizeString(req.LastName)
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: first name and last name are required", ErrInvalidInput)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		Provider:     models.AuthProviderPassword,
	}
	profile := &models.UserProfile{
		FirstName: firstName,
		LastName:  lastName,
		Phone:     utils.SafeStringPointer(req.Phone),
	}

	if err := s.createUser(ctx, user, profile); err != nil {
		return nil, err
	}

	return s.currentUser(user, profile), nil
}

func (s *UserService) createUser(ctx context.Context, user *models.User, profile *models.UserProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", user.Email).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		return ErrEmailTaken
	}

	now := time.Now().UTC()
	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, passwordHash, user.Provider, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_name, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, profile.FirstName, profile.LastName, profile.Phone, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}

	user.CreatedAt, user.UpdatedAt = now, now
	profile.UserID = user.ID
	profile.CreatedAt, profile.UpdatedAt = now, now
	return nil
}

// Authenticate checks an email and password pair
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.getUser(ctx, "email", utils.NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// GetByID returns a user by ID
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetByEmail returns a user by email
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", utils.NormalizeEmail(email))
}

func (s *UserService) getUser(ctx context.Context, column, value string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, email, password_hash, provider, created_at, updated_at
		FROM users WHERE %s = ?`, column)

	user := &models.User{}
	var passwordHash sql.NullString
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID, &user.Email, &passwordHash, &user.Provider, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.PasswordHash = passwordHash.String
	return user, nil
}

func (s *UserService) getProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, first_name, last_name, phone, created_at, updated_at
		FROM user_profiles WHERE user_id = ?`, userID).Scan(
		&profile.UserID, &profile.FirstName, &profile.LastName, &phone, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	if phone.Valid {
		profile.Phone = &phone.String
	}
	return profile, nil
}

// GetCurrentUser returns the user, their profile and the admin flag
func (s *UserService) GetCurrentUser(ctx context.Context, userID string) (*models.CurrentUser, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.currentUser(user, profile), nil
}

func (s *UserService) currentUser(user *models.User, profile *models.UserProfile) *models.CurrentUser {
	return &models.CurrentUser{
		User:    *user,
		Profile: profile,
		IsAdmin: IsAdminEmail(user.Email, s.adminDomain),
	}
}

// UpdateProfile applies a partial profile update
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req *models.ProfileUpdateRequest) (*models.CurrentUser, error) {
	current, err := s.GetCurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := current.Profile
	if profile == nil {
		profile = &models.UserProfile{UserID: userID}
	}
	if req.FirstName != nil {
		profile.FirstName = utils.SanitizeString(*req.FirstName)
	}
	if req.LastName != nil {
		profile.LastName = utils.SanitizeString(*req.LastName)
	}
	if req.Phone != nil {
		profile.Phone = utils.SafeStringPointer(*req.Phone)
	}
	if profile.FirstName == "" || profile.LastName == "" {
		return nil, fmt.Errorf("%w: first name and last name cannot be empty", ErrInvalidInput)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_name, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone,
			updated_at = excluded.updated_at`,
		userID, profile.FirstName, profile.LastName, profile.Phone, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return s.GetCurrentUser(ctx, userID)
}

// FindOrCreateOAuthUser signs in an externally verified email, creating the account on first use
func (s *UserService) FindOrCreateOAuthUser(ctx context.Context, email, firstName, lastName string) (*models.CurrentUser, error) {
	email = utils.NormalizeEmail(email)
	if !utils.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}

	user, err := s.GetByEmail(ctx, email)
	if err == nil {
		return s.GetCurrentUser(ctx, user.ID)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user = &models.User{
		ID:       uuid.New().String(),
		Email:    email,
		Provider: models.AuthProviderGoogle,
	}
	profile := &models.UserProfile{
		FirstName: utils.SanitizeString(firstName),
		LastName:  utils.SanitizeString(lastName),
	}
	if err := s.createUser(ctx, user, profile); err != nil {
		return nil, err
	}
	return s.currentUser(user, profile), nil
}

// EnsureAdmin creates an administrator account, or resets its password if it exists
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (*models.CurrentUser, bool, error) {
	email = utils.NormalizeEmail(email)
	if !IsAdminEmail(email, s.adminDomain) {
		return nil, false, fmt.Errorf("%w: admin accounts must use an %s address", ErrInvalidInput, s.adminDomain)
	}

	existing, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		admin, err := s.createPasswordAccount(ctx, &models.SignUpRequest{
			Email:     email,
			Password:  password,
			FirstName: "Admin",
			LastName:  "User",
		})
		return admin, true, err
	}
	if err != nil {
		return nil, false, err
	}

	if problems := utils.ValidatePassword(password); len(problems) > 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, ", "))
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, "UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		string(hashedPassword), time.Now().UTC(), existing.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reset admin password: %w", err)
	}

	admin, err := s.GetCurrentUser(ctx, existing.ID)
	return admin, false, err
}

package models

import (
	"strings"
	"time"
)

// AuthProvider records how an account signs in
type AuthProvider string

const (
	AuthProviderPassword AuthProvider = "password"
	AuthProviderGoogle   AuthProvider = "google"
)

// User represents an account in the MediTrack system
type User struct {
	ID           string       `json:"id" db:"id"`
	Email        string       `json:"email" db:"email"`
	PasswordHash string       `json:"-" db:"password_hash"`
	Provider     AuthProvider `json:"provider" db:"provider"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time    `json:"updatedAt" db:"updated_at"`
}

// UserProfile holds the customer details collected at sign-up
type UserProfile struct {
	UserID    string    `json:"userId" db:"user_id"`
	FirstName string    `json:"firstName" db:"first_name"`
	LastName  string    `json:"lastName" db:"last_name"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// FullName returns the profile's display name
func (p *UserProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CurrentUser is the signed-in user as seen by the storefront
type CurrentUser struct {
	User
	Profile *UserProfile `json:"profile,omitempty"`
	IsAdmin bool         `json:"isAdmin"`
}

// SignUpRequest represents user registration data
type SignUpRequest struct {
	Email     string `json:"email" binding:"required,email,max=100"`
	Password  string `json:"password" binding:"required,strong_password"`
	FirstName string `json:"firstName" binding:"required,min=1,max=50"`
	LastName  string `json:"lastName" binding:"required,min=1,max=50"`
	Phone     string `json:"phone" binding:"omitempty,phone"`
}

// SignInRequest represents user login data
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=128"`
}

// RefreshRequest carries the token to be refreshed
type RefreshRequest struct {
	Token string `json:"token" binding:"required"`
}

// ProfileUpdateRequest represents user profile update data
type ProfileUpdateRequest struct {
	FirstName *string `json:"firstName,omitempty" binding:"omitempty,min=1,max=50"`
	LastName  *string `json:"lastName,omitempty" binding:"omitempty,min=1,max=50"`
	Phone     *string `json:"phone,omitempty" binding:"omitempty,phone"`
}

// AuthResponse is returned after a successful sign-in
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *CurrentUser `json:"user"`
}

package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/utils"
)

// OAuthStateTTL bounds how long a Google sign-in may take
const OAuthStateTTL = 10 * time.Minute

// GoogleProfile is the subset of the Google userinfo we rely on
type GoogleProfile struct {
	Email         string
	VerifiedEmail bool
	GivenName     string
	FamilyName    string
}

type userInfoFunc func(ctx context.Context, ts oauth2.TokenSource) (*GoogleProfile, error)

// OAuthService signs users in with Google
type OAuthService struct {
	config      *oauth2.Config
	stateSecret []byte
	users       *UserService
	userInfo    userInfoFunc
}

// NewOAuthService creates a Google sign-in service
func NewOAuthService(clientID, clientSecret, redirectURL, stateSecret string, users *UserService) *OAuthService {
	return &OAuthService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"openid",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		stateSecret: []byte(stateSecret),
		users:       users,
		userInfo:    fetchGoogleProfile,
	}
}

func fetchGoogleProfile(ctx context.Context, ts oauth2.TokenSource) (*GoogleProfile, error) {
	svc, err := googleoauth2.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch google profile: %w", err)
	}
	profile := &GoogleProfile{
		Email:      info.Email,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
	}
	if info.VerifiedEmail != nil {
		profile.VerifiedEmail = *info.VerifiedEmail
	}
	return profile, nil
}

// AuthCodeURL returns the Google consent URL and the signed state it carries
func (s *OAuthService) AuthCodeURL() (string, string) {
	state := s.newState(time.Now().Add(OAuthStateTTL))
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOnline), state
}

func (s *OAuthService) newState(expires time.Time) string {
	payload := utils.GenerateRandomString(16) + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + s.sign(payload)
}

func (s *OAuthService) sign(payload string) string {
	mac := hmac.New(sha256.New, s.stateSecret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateState checks the state signature and expiry
func (s *OAuthService) ValidateState(state string) error {
	parts := strings.Split(state, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: malformed oauth state", ErrUnauthorized)
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(s.sign(payload))) {
		return fmt.Errorf("%w: oauth state signature mismatch", ErrUnauthorized)
	}

	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed oauth state", ErrUnauthorized)
	}
	if time.Now().After(time.Unix(expires, 0)) {
		return fmt.Errorf("%w: oauth state expired", ErrUnauthorized)
	}
	return nil
}

// HandleCallback exchanges the authorization code and signs the Google user in.
// browserState is the state stored with the browser that started the sign-in; it must
// match the state Google sent back.
func (s *OAuthService) HandleCallback(ctx context.Context, code, state, browserState string) (*models.CurrentUser, error) {
	if err := s.ValidateState(state); err != nil {
		return nil, err
	}
	if browserState == "" || !hmac.Equal([]byte(state), []byte(browserState)) {
		return nil, fmt.Errorf("%w: oauth state was not issued to this browser", ErrUnauthorized)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrInvalidInput)
	}

	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange authorization code: %v", ErrUnauthorized, err)
	}

	profile, err := s.userInfo(ctx, s.config.TokenSource(ctx, token))
	if err != nil {
		return nil, err
	}
	if !profile.VerifiedEmail {
		return nil, fmt.Errorf("%w: google account email is not verified", ErrUnauthorized)
	}

	return s.users.FindOrCreateOAuthUser(ctx, profile.Email, profile.GivenName, profile.FamilyName)
}

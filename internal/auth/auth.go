// Package auth implements accounts and sessions for nestling: registration,
// login with bcrypt password checks, opaque session tokens, and the
// household-membership authorization that scopes every data operation.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"nestling/internal/logging"
	"nestling/internal/store"
	"nestling/internal/types"
)

// Errors reported to the API layer. Wrapped details stay in the logs.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("not authorized")
	ErrRegistrationClosed = errors.New("registration is closed")
)

// dummyHash is a valid bcrypt hash compared against when the email is
// unknown, so both failure paths cost a full bcrypt round.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service provides account and session operations over the store.
type Service struct {
	store            *store.Store
	sessionTTL       time.Duration
	bcryptCost       int
	openRegistration bool
}

// New creates an auth service.
func New(s *store.Store, sessionTTL time.Duration, bcryptCost int, openRegistration bool) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:            s,
		sessionTTL:       sessionTTL,
		bcryptCost:       bcryptCost,
		openRegistration: openRegistration,
	}
}

// Context is the authenticated caller: the user plus their household. It is
// resolved once per request and threaded through the handlers.
type Context struct {
	User      *types.User
	Household *types.Household
}

// Register creates a user account. With a non-empty inviteCode the user
// joins that household; otherwise a new household named householdName is
// created. Returns the new user's auth context.
func (s *Service) Register(email, password, displayName, inviteCode, householdName string) (*Context, error) {
	if !s.openRegistration {
		return nil, ErrRegistrationClosed
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	var household *types.Household
	var err error
	if inviteCode != "" {
		household, err = s.store.GetHouseholdByInvite(strings.TrimSpace(inviteCode))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("unknown invite code")
			}
			return nil, err
		}
	} else {
		if strings.TrimSpace(householdName) == "" {
			householdName = "Family"
		}
		household, err = s.store.CreateHousehold(householdName)
		if err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.store.CreateUser(email, displayName, household.ID, string(hash))
	if err != nil {
		return nil, err
	}

	logging.Auth("Registered: user=%s household=%s joined_by_invite=%v", user.Email, household.ID, inviteCode != "")
	return &Context{User: user, Household: household}, nil
}

// Login verifies credentials and issues a session.
func (s *Service) Login(email, password string) (*types.Session, error) {
	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison anyway so missing and wrong-password
			// logins take similar time.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logging.Auth("Login failed: user=%s", user.Email)
		return nil, ErrInvalidCredentials
	}

	sess, err := s.store.CreateSession(user.ID, s.sessionTTL)
	if err != nil {
		return nil, err
	}

	logging.Auth("Login: user=%s", user.Email)
	return sess, nil
}

// Logout revokes a session token.
func (s *Service) Logout(token string) error {
	return s.store.DeleteSession(token)
}

// Authenticate resolves a bearer token into an auth context.
func (s *Service) Authenticate(token string) (*Context, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	sess, err := s.store.GetSession(token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	user, err := s.store.GetUser(sess.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	household, err := s.store.GetHousehold(user.HouseholdID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &Context{User: user, Household: household}, nil
}

// AuthorizeBaby verifies the caller's household owns the baby.
func (s *Service) AuthorizeBaby(ctx *Context, babyID string) error {
	ok, err := s.store.BabyInHousehold(babyID, ctx.Household.ID)
	if err != nil {
		return err
	}
	if !ok {
		logging.Auth("Denied: user=%s baby=%s", ctx.User.Email, babyID)
		return ErrUnauthorized
	}
	return nil
}

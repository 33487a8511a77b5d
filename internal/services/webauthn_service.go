package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"

	"media-gallery/internal/auth"
	"media-gallery/internal/models"
	"media-gallery/internal/repository"
	"media-gallery/internal/utils"
)

const webauthnSessionPrefix = "webauthn:session:"

type WebAuthnConfig struct {
	RPID         string
	RPName       string
	RPOrigin     string
	ChallengeTTL time.Duration
}

// WebAuthnService wraps passkey ceremonies. Pending challenges live in redis
// under a TTL, so half-finished ceremonies expire on their own and ceremonies
// survive process restarts.
type WebAuthnService struct {
	wa    *webauthn.WebAuthn
	users repository.UserRepository
	rdb   *redis.Client
	jwt   *auth.JWTManager
	ttl   time.Duration
}

func NewWebAuthnService(users repository.UserRepository, rdb *redis.Client, jwt *auth.JWTManager, cfg WebAuthnConfig) (*WebAuthnService, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPName,
		RPID:          cfg.RPID,
		RPOrigins:     []string{cfg.RPOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	ttl := cfg.ChallengeTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &WebAuthnService{wa: wa, users: users, rdb: rdb, jwt: jwt, ttl: ttl}, nil
}

// waUser adapts a stored user to the authenticator ceremony interface.
type waUser struct {
	u *models.User
}

func (w waUser) WebAuthnID() []byte          { return []byte(w.u.ID.Hex()) }
func (w waUser) WebAuthnName() string        { return w.u.Username }
func (w waUser) WebAuthnDisplayName() string { return w.u.Username }
func (w waUser) WebAuthnIcon() string        { return "" }

func (w waUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(w.u.WebAuthnCredentials))
	for _, c := range w.u.WebAuthnCredentials {
		id, err := base64.RawURLEncoding.DecodeString(c.CredentialID)
		if err != nil {
			continue
		}
		pub, err := base64.RawURLEncoding.DecodeString(c.PublicKey)
		if err != nil {
			continue
		}
		transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
		for _, t := range c.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		creds = append(creds, webauthn.Credential{
			ID:        id,
			PublicKey: pub,
			Transport: transports,
			Authenticator: webauthn.Authenticator{
				SignCount: c.Counter,
			},
		})
	}
	return creds
}

func (s *WebAuthnService) saveSession(ctx context.Context, kind, userID string, sd *webauthn.SessionData) error {
	b, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, webauthnSessionPrefix+kind+":"+userID, b, s.ttl).Err()
}

func (s *WebAuthnService) takeSession(ctx context.Context, kind, userID string) (*webauthn.SessionData, error) {
	key := webauthnSessionPrefix + kind + ":" + userID
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: no pending challenge", utils.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	// one-shot: a challenge never verifies twice
	s.rdb.Del(ctx, key)
	var sd webauthn.SessionData
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

// BeginRegistration issues creation options for the authenticated user,
// excluding already-registered credentials.
func (s *WebAuthnService) BeginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	wu := waUser{u: u}
	exclusions := make([]protocol.CredentialDescriptor, 0, len(u.WebAuthnCredentials))
	for _, c := range wu.WebAuthnCredentials() {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
		})
	}
	opts, sd, err := s.wa.BeginRegistration(wu, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if err := s.saveSession(ctx, "register", userID, sd); err != nil {
		return nil, err
	}
	return opts, nil
}

// FinishRegistration verifies the attestation response and appends the new
// credential to the user.
func (s *WebAuthnService) FinishRegistration(ctx context.Context, userID string, body []byte) (*models.WebAuthnCredential, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sd, err := s.takeSession(ctx, "register", userID)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}
	cred, err := s.wa.CreateCredential(waUser{u: u}, *sd, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: attestation rejected: %v", utils.ErrUnauthorized, err)
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	stored := models.WebAuthnCredential{
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
		PublicKey:    base64.RawURLEncoding.EncodeToString(cred.PublicKey),
		Counter:      cred.Authenticator.SignCount,
		Transports:   transports,
		CreatedAt:    time.Now().UTC(),
	}
	u.WebAuthnCredentials = append(u.WebAuthnCredentials, stored)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return &stored, nil
}

// BeginLogin issues assertion options for the named account. An account with
// no registered passkeys cannot start the ceremony.
func (s *WebAuthnService) BeginLogin(ctx context.Context, identifier string) (*protocol.CredentialAssertion, error) {
	u, err := s.users.FindByUsernameOrEmail(ctx, identifier, identifier)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown account", utils.ErrNotFound)
		}
		return nil, err
	}
	if len(u.WebAuthnCredentials) == 0 {
		return nil, fmt.Errorf("%w: no passkeys registered", utils.ErrValidation)
	}
	opts, sd, err := s.wa.BeginLogin(waUser{u: u})
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}
	if err := s.saveSession(ctx, "login", u.ID.Hex(), sd); err != nil {
		return nil, err
	}
	return opts, nil
}

// FinishLogin verifies the assertion and returns a signed token, updating the
// stored sign counter.
func (s *WebAuthnService) FinishLogin(ctx context.Context, identifier string, body []byte) (*LoginResult, error) {
	u, err := s.users.FindByUsernameOrEmail(ctx, identifier, identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown account", utils.ErrUnauthorized)
	}
	sd, err := s.takeSession(ctx, "login", u.ID.Hex())
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}
	cred, err := s.wa.ValidateLogin(waUser{u: u}, *sd, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: assertion rejected: %v", utils.ErrUnauthorized, err)
	}

	credID := base64.RawURLEncoding.EncodeToString(cred.ID)
	for i := range u.WebAuthnCredentials {
		if u.WebAuthnCredentials[i].CredentialID == credID {
			u.WebAuthnCredentials[i].Counter = cred.Authenticator.SignCount
			break
		}
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	u.LoginAttempts = 0
	u.LockUntil = nil
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	token, err := s.jwt.Generate(u.ID.Hex())
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Credentials lists the user's registered passkeys.
func (s *WebAuthnService) Credentials(ctx context.Context, userID string) ([]models.WebAuthnCredential, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.WebAuthnCredentials == nil {
		return []models.WebAuthnCredential{}, nil
	}
	return u.WebAuthnCredentials, nil
}

// DeleteCredential removes one passkey by its credential id.
func (s *WebAuthnService) DeleteCredential(ctx context.Context, userID, credentialID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	kept := u.WebAuthnCredentials[:0]
	found := false
	for _, c := range u.WebAuthnCredentials {
		if c.CredentialID == credentialID {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return fmt.Errorf("%w: credential %s", utils.ErrNotFound, credentialID)
	}
	u.WebAuthnCredentials = kept
	return s.users.Update(ctx, u)
}

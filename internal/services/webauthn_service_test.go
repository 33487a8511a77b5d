package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"media-gallery/internal/auth"
	"media-gallery/internal/models"
	"media-gallery/internal/utils"
)

func newTestWebAuthn(t *testing.T, repo *fakeUserRepo) (*WebAuthnService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	svc, err := NewWebAuthnService(repo, rdb, auth.NewJWTManager("test-secret", time.Hour), WebAuthnConfig{
		RPID:         "localhost",
		RPName:       "PersonalMedia",
		RPOrigin:     "http://localhost:3000",
		ChallengeTTL: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new webauthn service: %v", err)
	}
	return svc, mr
}

func seedUser(repo *fakeUserRepo, creds ...models.WebAuthnCredential) *models.User {
	u := &models.User{
		ID:                  primitive.NewObjectID(),
		Username:            "alice",
		Email:               "alice@example.com",
		IsActive:            true,
		WebAuthnCredentials: creds,
	}
	repo.users[u.ID.Hex()] = u
	return u
}

func TestBeginRegistrationStoresChallenge(t *testing.T) {
	repo := newFakeUserRepo()
	u := seedUser(repo)
	svc, mr := newTestWebAuthn(t, repo)

	opts, err := svc.BeginRegistration(context.Background(), u.ID.Hex())
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	if len(opts.Response.Challenge) == 0 {
		t.Fatalf("no challenge issued")
	}
	if !mr.Exists("webauthn:session:register:" + u.ID.Hex()) {
		t.Fatalf("challenge not persisted")
	}
}

func TestChallengeExpires(t *testing.T) {
	repo := newFakeUserRepo()
	u := seedUser(repo)
	svc, mr := newTestWebAuthn(t, repo)
	ctx := context.Background()

	if _, err := svc.BeginRegistration(ctx, u.ID.Hex()); err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	mr.FastForward(6 * time.Minute)

	_, err := svc.FinishRegistration(ctx, u.ID.Hex(), []byte("{}"))
	if !errors.Is(err, utils.ErrUnauthorized) {
		t.Fatalf("expected expired-challenge rejection, got %v", err)
	}
}

func TestChallengeIsSingleUse(t *testing.T) {
	repo := newFakeUserRepo()
	u := seedUser(repo)
	svc, _ := newTestWebAuthn(t, repo)
	ctx := context.Background()

	if _, err := svc.BeginRegistration(ctx, u.ID.Hex()); err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	// garbage body consumes the challenge
	svc.FinishRegistration(ctx, u.ID.Hex(), []byte("{}"))
	_, err := svc.FinishRegistration(ctx, u.ID.Hex(), []byte("{}"))
	if !errors.Is(err, utils.ErrUnauthorized) {
		t.Fatalf("expected consumed-challenge rejection, got %v", err)
	}
}

func TestBeginLoginRequiresPasskey(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo)
	svc, _ := newTestWebAuthn(t, repo)

	_, err := svc.BeginLogin(context.Background(), "alice")
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected ErrValidation for passkey-less account, got %v", err)
	}
}

func TestBeginLoginUnknownAccount(t *testing.T) {
	svc, _ := newTestWebAuthn(t, newFakeUserRepo())
	_, err := svc.BeginLogin(context.Background(), "nobody")
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCredentialListAndDelete(t *testing.T) {
	repo := newFakeUserRepo()
	u := seedUser(repo, models.WebAuthnCredential{
		CredentialID: "cred-1",
		PublicKey:    "cGs",
		CreatedAt:    time.Now().UTC(),
	})
	svc, _ := newTestWebAuthn(t, repo)
	ctx := context.Background()

	creds, err := svc.Credentials(ctx, u.ID.Hex())
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if len(creds) != 1 || creds[0].CredentialID != "cred-1" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	if err := svc.DeleteCredential(ctx, u.ID.Hex(), "cred-1"); err != nil {
		t.Fatalf("delete credential: %v", err)
	}
	if err := svc.DeleteCredential(ctx, u.ID.Hex(), "cred-1"); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	creds, _ = svc.Credentials(ctx, u.ID.Hex())
	if len(creds) != 0 {
		t.Fatalf("credential survived delete: %+v", creds)
	}
}

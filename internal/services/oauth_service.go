package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"media-gallery/internal/auth"
	"media-gallery/internal/models"
	"media-gallery/internal/repository"
	"media-gallery/internal/utils"
)

const (
	oauthStatePrefix = "oauth:state:"
	oauthStateTTL    = 10 * time.Minute

	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	githubUserURL     = "https://api.github.com/user"
	githubEmailsURL   = "https://api.github.com/user/emails"
)

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OAuthService runs the authorization-code flow for Google and GitHub and
// maps the returned identity onto a local account, creating one on first
// sign-in. State tokens live in redis so callbacks can land on any instance.
type OAuthService struct {
	users   repository.UserRepository
	rdb     *redis.Client
	jwt     *auth.JWTManager
	configs map[string]*oauth2.Config
}

func NewOAuthService(users repository.UserRepository, rdb *redis.Client, jwt *auth.JWTManager, googleConf, githubConf OAuthProviderConfig) *OAuthService {
	configs := make(map[string]*oauth2.Config)
	if googleConf.ClientID != "" {
		configs[models.ProviderGoogle] = &oauth2.Config{
			ClientID:     googleConf.ClientID,
			ClientSecret: googleConf.ClientSecret,
			RedirectURL:  googleConf.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}
	if githubConf.ClientID != "" {
		configs[models.ProviderGitHub] = &oauth2.Config{
			ClientID:     githubConf.ClientID,
			ClientSecret: githubConf.ClientSecret,
			RedirectURL:  githubConf.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}
	}
	return &OAuthService{users: users, rdb: rdb, jwt: jwt, configs: configs}
}

// AuthURL returns the provider consent URL with a fresh single-use state.
func (s *OAuthService) AuthURL(ctx context.Context, provider string) (string, error) {
	conf, ok := s.configs[provider]
	if !ok {
		return "", fmt.Errorf("%w: unknown or unconfigured provider %q", utils.ErrValidation, provider)
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := hex.EncodeToString(buf)
	if err := s.rdb.Set(ctx, oauthStatePrefix+state, provider, oauthStateTTL).Err(); err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state), nil
}

type oauthIdentity struct {
	ProviderID string
	Email      string
	Name       string
	Avatar     string
}

// Callback exchanges the code, fetches the provider profile and returns a
// signed token for the matching (or freshly created) local account.
func (s *OAuthService) Callback(ctx context.Context, provider, state, code string) (*LoginResult, error) {
	conf, ok := s.configs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown or unconfigured provider %q", utils.ErrValidation, provider)
	}
	stored, err := s.rdb.Get(ctx, oauthStatePrefix+state).Result()
	if errors.Is(err, redis.Nil) || stored != provider {
		return nil, fmt.Errorf("%w: invalid oauth state", utils.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, oauthStatePrefix+state)

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", utils.ErrUnauthorized, err)
	}
	ident, err := s.fetchIdentity(ctx, provider, conf, token)
	if err != nil {
		return nil, err
	}
	u, err := s.findOrCreate(ctx, provider, ident)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u.LastLogin = &now
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	signed, err := s.jwt.Generate(u.ID.Hex())
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: signed, User: u}, nil
}

func (s *OAuthService) fetchIdentity(ctx context.Context, provider string, conf *oauth2.Config, token *oauth2.Token) (*oauthIdentity, error) {
	client := conf.Client(ctx, token)
	switch provider {
	case models.ProviderGoogle:
		var payload struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := fetchJSON(client, googleUserInfoURL, &payload); err != nil {
			return nil, err
		}
		return &oauthIdentity{ProviderID: payload.ID, Email: payload.Email, Name: payload.Name, Avatar: payload.Picture}, nil
	case models.ProviderGitHub:
		var payload struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := fetchJSON(client, githubUserURL, &payload); err != nil {
			return nil, err
		}
		email := payload.Email
		if email == "" {
			email = s.primaryGitHubEmail(client)
		}
		name := payload.Name
		if name == "" {
			name = payload.Login
		}
		return &oauthIdentity{ProviderID: strconv.FormatInt(payload.ID, 10), Email: email, Name: name, Avatar: payload.AvatarURL}, nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", utils.ErrValidation, provider)
}

// primaryGitHubEmail covers accounts whose email is hidden on the profile.
func (s *OAuthService) primaryGitHubEmail(client *http.Client) string {
	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := fetchJSON(client, githubEmailsURL, &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}

func (s *OAuthService) findOrCreate(ctx context.Context, provider string, ident *oauthIdentity) (*models.User, error) {
	if ident.Email == "" {
		return nil, fmt.Errorf("%w: provider returned no email", utils.ErrUpstream)
	}
	email := strings.ToLower(ident.Email)

	u, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		if u.Provider == models.ProviderLocal {
			// link the provider to the existing local account
			u.Provider = provider
			u.ProviderID = ident.ProviderID
		}
		if u.Avatar == "" {
			u.Avatar = ident.Avatar
		}
		return u, nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return nil, err
	}

	// oauth accounts never log in with this password; it only satisfies the
	// non-empty hash invariant
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	username := ident.Name
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	u = &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Avatar:       ident.Avatar,
		Role:         models.RoleUser,
		IsActive:     true,
		Provider:     provider,
		ProviderID:   ident.ProviderID,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			// username collision; retry once with a suffixed name
			u.Username = username + "-" + ident.ProviderID
			if err := s.users.Create(ctx, u); err != nil {
				return nil, err
			}
			return u, nil
		}
		return nil, err
	}
	return u, nil
}

func fetchJSON(client *http.Client, url string, dst any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", utils.ErrUpstream, url, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

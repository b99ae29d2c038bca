package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/smallbiznis/loadpass/internal/auth/domain"
	"github.com/smallbiznis/loadpass/internal/config"
	"go.uber.org/zap"
)

const clockSkew = 30 * time.Second

type Verifier struct {
	secret []byte
	log    *zap.Logger
}

// NewVerifier checks HS256 tokens signed with AUTH_JWT_SECRET. Outside production a
// missing secret is allowed and every token is rejected.
func NewVerifier(cfg config.Config, log *zap.Logger) (domain.Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	log = log.Named("auth.verifier")
	if secret == "" {
		if cfg.IsProduction() {
			return nil, domain.ErrMissingSecret
		}
		log.Warn("AUTH_JWT_SECRET is empty, bearer authentication is disabled")
	}
	return &Verifier{secret: []byte(secret), log: log}, nil
}

func (v *Verifier) Verify(ctx context.Context, rawToken string) (domain.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	if len(v.secret) == 0 {
		return domain.Identity{}, domain.ErrMissingSecret
	}

	token, err := jwt.Parse(
		[]byte(rawToken),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(clockSkew),
		jwt.WithContext(ctx),
	)
	if err != nil {
		v.log.Debug("bearer token rejected", zap.Error(err))
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	userID := strings.TrimSpace(token.Subject())
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing sub claim", domain.ErrInvalidToken)
	}

	return domain.Identity{
		UserID: userID,
		Email:  stringClaim(token, "email"),
		Role:   stringClaim(token, "role"),
	}, nil
}

func stringClaim(token jwt.Token, name string) string {
	value, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", domain.ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrUnauthenticated
	}
	return token, nil
}

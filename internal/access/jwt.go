package access

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sitesafe/hsetrack/internal/errors"
)

// ErrInvalidCredential is returned for tokens that fail verification.
var ErrInvalidCredential = errors.NewStd("invalid or expired credential")

// Claims are the token claims hsetrack reads. The subject is the actor ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 bearer tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier. issuer may be empty to accept any iss.
func NewJWTVerifier(secret, issuer string, leeway time.Duration) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.Newf("token secret is empty").
			Component("access").
			Category(errors.CategoryConfiguration).
			Build()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify implements CredentialVerifier.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (Actor, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Actor{}, credentialError(err, "parse")
	}

	actor := Actor{ID: claims.Subject, Role: Role(claims.Role)}
	if actor.ID == "" {
		return Actor{}, credentialError(errors.NewStd("token has no subject"), "claims")
	}
	if !actor.Role.Valid() {
		return Actor{}, credentialError(errors.NewStd("token has unknown role"), "claims")
	}
	return actor, nil
}

func credentialError(cause error, stage string) error {
	return errors.New(errors.Join(ErrInvalidCredential, cause)).
		Component("access").
		Category(errors.CategoryAuthorization).
		Priority(errors.PriorityLow).
		Context("stage", stage).
		Build()
}

// SignToken creates an HS256 token for actor. hsetrack does not issue
// credentials; this exists for tests and local tooling.
func SignToken(secret, issuer string, actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

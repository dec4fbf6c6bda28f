package utils

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Credential namespaces. Each namespace is signed with its own secret and
// stamped as the token issuer, so a customer token never verifies as an
// admin token and vice versa.
const (
	CustomerNamespace = "storefront-customer"
	AdminNamespace    = "storefront-admin"
)

// Identity is what a verified credential proves about its bearer.
type Identity struct {
	SubjectID int64
	IsAdmin   bool
}

type Claims struct {
	CustomerID int64 `json:"customer_id"`
	IsAdmin    bool  `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret    []byte
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenService(secret []byte, namespace string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret:    secret,
		namespace: namespace,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *TokenService) Namespace() string { return s.namespace }

// Issue signs a credential valid for the service's TTL.
func (s *TokenService) Issue(subjectID int64, isAdmin bool) (string, error) {
	return s.IssueWithExpiry(subjectID, isAdmin, s.now().Add(s.ttl))
}

func (s *TokenService) IssueWithExpiry(subjectID int64, isAdmin bool, expiresAt time.Time) (string, error) {
	now := s.now()
	claims := Claims{
		CustomerID: subjectID,
		IsAdmin:    isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.namespace,
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, algorithm, issuer and expiry. It never touches
// any store.
func (s *TokenService) Verify(raw string) (*Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingCredential
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.namespace),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, errors.Join(ErrInvalidCredential, err)
	}
	if claims.CustomerID <= 0 {
		return nil, ErrInvalidCredential
	}

	return &Identity{SubjectID: claims.CustomerID, IsAdmin: claims.IsAdmin}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

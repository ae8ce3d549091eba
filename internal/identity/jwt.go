package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	ErrTokenMissing = errors.New("identity: token missing")
	ErrTokenInvalid = errors.New("identity: token invalid")
)

// Claims is the payload of a cartflow access token. The subject is the user
// ID and therefore the cart scope.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Tier  string `json:"tier,omitempty"`
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer, now: time.Now}
}

func (v *Verifier) Verify(tokenStr string) (domain.UserIdentity, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return domain.UserIdentity{}, ErrTokenMissing
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.UserIdentity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return domain.UserIdentity{}, fmt.Errorf("%w: issuer mismatch, got %q", ErrTokenInvalid, claims.Issuer)
	}
	if claims.Subject == "" {
		return domain.UserIdentity{}, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}

	return domain.UserIdentity{
		ID:    claims.Subject,
		Email: claims.Email,
		Tier:  claims.Tier,
	}, nil
}

// Issue signs a token for user valid for ttl.
func (v *Verifier) Issue(user domain.UserIdentity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: user.Email,
		Tier:  user.Tier,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

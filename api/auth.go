package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// DefaultKeyCacheTTL is how long a verification key fetched from the JWKS
// stays cached per key id.
const DefaultKeyCacheTTL = 15 * time.Minute

// Auth validates incoming JWT tokens, either RS256 against a JWKS or HS256
// with a shared secret in local mode.
type Auth struct {
	JWKS      *keyfunc.JWKS
	Audience  string
	Issuer    string
	LocalMode bool
	Secret    []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth that verifies RS256 tokens with keys from jwks.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string, keyCacheTTL time.Duration) *Auth {
	return &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: keyCacheTTL,
		now:         time.Now,
	}
}

// NewLocalAuth creates an Auth that verifies HS256 tokens signed with secret.
func NewLocalAuth(secret []byte, audience, issuer string) (*Auth, error) {
	if len(secret) == 0 {
		return nil, errors.New("local auth needs a shared secret")
	}
	return &Auth{
		Audience:  audience,
		Issuer:    issuer,
		LocalMode: true,
		Secret:    secret,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		now:       time.Now,
	}, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerToken(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromToken(token)
}

// UserIDFromToken verifies a raw JWT and returns its subject.
func (a *Auth) UserIDFromToken(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", errBadAuthorization
	}
	var (
		parsed *jwt.Token
		err    error
	)
	if a.LocalMode {
		parsed, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.Secret, nil
		})
	} else {
		parsed, err = a.parser.Parse(tokenStr, a.keyForToken)
	}
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := a.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, true) {
		return "", errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, true) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

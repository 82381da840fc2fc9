package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const devMintScope = "dev:mint"

// tokenVerifier checks HMAC signed bearer tokens guarding development
// methods.
type tokenVerifier struct {
	secret []byte
	issuer string
	skew   time.Duration
}

func newTokenVerifier(secret []byte, issuer string) *tokenVerifier {
	return &tokenVerifier{secret: secret, issuer: issuer, skew: 2 * time.Minute}
}

func (v *tokenVerifier) authorize(r *http.Request) *RPCError {
	if v == nil {
		return &RPCError{Code: codeUnauthorized, Message: "method disabled"}
	}
	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.skew),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		if err == nil {
			err = errors.New("token invalid")
		}
		return &RPCError{Code: codeUnauthorized, Message: "invalid token", Data: err.Error()}
	}
	if !hasScope(claims, devMintScope) {
		return &RPCError{Code: codeUnauthorized, Message: "insufficient scope"}
	}
	return nil
}

func hasScope(claims jwt.MapClaims, want string) bool {
	raw, _ := claims["scope"].(string)
	for _, scope := range strings.Fields(raw) {
		if scope == want {
			return true
		}
	}
	return false
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "usuario"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

var ErrDecode = errors.New("credential decode failed")

// Claims is the payload the clinic API puts in its access token.
type Claims struct {
	Email              string `json:"email"`
	Role               Role   `json:"role"`
	MustChangePassword bool   `json:"precisaTrocarSenha"`
	jwt.RegisteredClaims
}

// Decode reads the claims segment of credential without checking its
// signature. The result drives display and routing only; the clinic API
// enforces authorization on every call.
func Decode(credential string) (Claims, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Claims{}, fmt.Errorf("%w: missing credential", ErrDecode)
	}

	claims := Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if claims.Email == "" {
		claims.Email = claims.Subject
	}
	return claims, nil
}

// Package credentials supplies the optional bearer token used to record
// search history. Providers only read tokens; nothing here writes them.
package credentials

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider returns the current token, if any.
type Provider interface {
	Token(ctx context.Context) (string, bool)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, bool)

// Token calls f.
func (f ProviderFunc) Token(ctx context.Context) (string, bool) {
	return f(ctx)
}

// now is replaced in tests.
var now = time.Now

// Usable reports whether token can be presented. Empty tokens and JWTs whose
// exp claim has passed are unusable. Tokens that are not JWTs are opaque and
// always usable.
func Usable(token string) bool {
	if token == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.After(now())
}

func present(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if !Usable(token) {
		return "", false
	}
	return token, true
}

// Static returns a fixed token. An empty token means none.
type Static string

// Token implements Provider.
func (s Static) Token(context.Context) (string, bool) {
	return present(string(s))
}

// Env reads the token from an environment variable on every call.
type Env string

// Token implements Provider.
func (e Env) Token(context.Context) (string, bool) {
	return present(os.Getenv(string(e)))
}

// File reads the token from a file on every call, so a login elsewhere is
// picked up without a restart. A missing or unreadable file means no token.
type File struct {
	Path string
}

// DefaultFilePath returns ~/.trafficroute/token.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".trafficroute", "token"), nil
}

// Token implements Provider.
func (f File) Token(context.Context) (string, bool) {
	if f.Path == "" {
		return "", false
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", false
	}
	return present(string(data))
}

// Chain returns the first token any provider has.
type Chain []Provider

// Token implements Provider.
func (c Chain) Token(ctx context.Context) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if token, ok := p.Token(ctx); ok {
			return token, true
		}
	}
	return "", false
}

type contextKey struct{}

// WithToken returns a context carrying token for FromContext.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKey{}, token)
}

// FromContext reads the token placed on the request context by WithToken.
var FromContext Provider = ProviderFunc(func(ctx context.Context) (string, bool) {
	token, _ := ctx.Value(contextKey{}).(string)
	return present(token)
})

// None never has a token.
var None Provider = Static("")

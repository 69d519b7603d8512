// Package auth abstracts credential fetching. The directory client pulls a
// bind password from a Provider when the configuration leaves it empty.
package auth

import (
	"fmt"
	"os"
	"strings"
)

// Provider resolves the secret for a user within a realm (for example
// ("svc-provision", "ads")).
type Provider interface {
	Get(user, realm string) (string, error)
}

// Env resolves secrets from environment variables named
// <REALM>_<USER>_SECRET, uppercased, with non-alphanumeric runes folded to
// underscores.
type Env struct{}

func (Env) Get(user, realm string) (string, error) {
	key := envKey(realm) + "_" + envKey(user) + "_SECRET"
	secret := os.Getenv(key)
	if secret == "" {
		return "", fmt.Errorf("no secret for %s@%s (%s unset)", user, realm, key)
	}
	return secret, nil
}

func envKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Static serves secrets from a fixed map keyed "user@realm". Intended for
// tests and embedded tooling.
type Static map[string]string

func (s Static) Get(user, realm string) (string, error) {
	if secret, ok := s[user+"@"+realm]; ok {
		return secret, nil
	}
	return "", fmt.Errorf("no secret for %s@%s", user, realm)
}

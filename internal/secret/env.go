package secret

import (
	"os"
	"strings"
)

// EnvStore reads secrets from environment variables. A key is upper-cased
// and non-alphanumerics become underscores, so "staff.password" is read
// from STAFF_PASSWORD.
type EnvStore struct {
	prefix string
}

// NewEnvStore creates an EnvStore with no variable prefix.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

// WithPrefix returns a copy that prepends prefix to every variable name.
func (e *EnvStore) WithPrefix(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix}
}

// Name returns the environment variable backing key.
func (e *EnvStore) Name(key string) string {
	return e.prefix + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
}

func (e *EnvStore) Set(key string, value []byte) error {
	return os.Setenv(e.Name(key), string(value))
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(e.Name(key))
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (e *EnvStore) Delete(key string) error {
	return os.Unsetenv(e.Name(key))
}

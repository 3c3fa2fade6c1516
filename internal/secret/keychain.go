package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const keychainService = "etlpipe"

// KeychainStore keeps connection passwords in the macOS login keychain
// through the `security` tool. Entries are generic passwords under the
// "etlpipe" service with the passwordKey as account.
type KeychainStore struct{}

// NewKeychainStore creates a new KeychainStore.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{}
}

func (k *KeychainStore) Set(key string, value []byte) error {
	// -U updates an existing item in place.
	if _, err := security("add-generic-password", "-a", key, "-s", keychainService, "-w", string(value), "-U"); err != nil {
		return fmt.Errorf("keychain set %s: %w", key, err)
	}
	return nil
}

func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := security("find-generic-password", "-a", key, "-s", keychainService, "-w")
	if itemNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keychain get %s: %w", key, err)
	}
	return []byte(strings.TrimSpace(out)), nil
}

func (k *KeychainStore) Delete(key string) error {
	_, err := security("delete-generic-password", "-a", key, "-s", keychainService)
	if err != nil && !itemNotFound(err) {
		return fmt.Errorf("keychain delete %s: %w", key, err)
	}
	return nil
}

func security(args ...string) (string, error) {
	cmd := exec.Command("security", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w", msg, err)
		}
		return "", err
	}
	return string(out), nil
}

// itemNotFound matches errSecItemNotFound, which `security` reports as exit 44.
func itemNotFound(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 44
}

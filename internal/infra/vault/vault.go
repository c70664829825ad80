// Package vault is the secret-store seam for credentials the
// detector's outbound capability clients need (gas-oracle and
// price-oracle API keys). Swappable behind SecretStore so a real
// secrets manager can replace EnvStore without touching callers.
package vault

import "os"

// SecretStore resolves a named secret to its current value.
type SecretStore interface {
	Get(key string) (string, error)
}

// EnvStore resolves secrets from the process environment, prefixing
// every key with ARBDETECT_SECRET_. Adequate for local runs and CI;
// production deployments should supply a SecretStore backed by a real
// vault instead.
type EnvStore struct{}

func (EnvStore) Get(key string) (string, error) {
	return os.Getenv("ARBDETECT_SECRET_" + key), nil
}

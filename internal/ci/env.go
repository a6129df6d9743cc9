// Package ci reads the variables of the CI host running a scan and
// publishes the summary attachment back to it.
package ci

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrEnvVarEmpty is returned when a required environment variable is not set
var ErrEnvVarEmpty = errors.New("required environment variable is not set")

// LookupFunc looks up an environment variable
type LookupFunc func(key string) (string, bool)

// EnvProvider provides environment variables with safe handling
type EnvProvider struct {
	log    *logrus.Logger
	lookup LookupFunc

	// Prefix is the prefix for environment variables
	Prefix string
}

// NewEnvProvider creates a new environment provider reading the process environment
func NewEnvProvider(prefix string, logger *logrus.Logger) *EnvProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &EnvProvider{
		log:    logger,
		lookup: os.LookupEnv,
		Prefix: prefix,
	}
}

// NewEnvProviderFromMap creates a provider backed by a fixed set of values
func NewEnvProviderFromMap(values map[string]string, logger *logrus.Logger) *EnvProvider {
	p := NewEnvProvider("", logger)
	p.lookup = func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
	return p
}

// Get gets an environment variable or returns a default value if not present
func (p *EnvProvider) Get(key, defaultValue string) string {
	fullKey := p.getFullKey(key)
	value, exists := p.lookup(fullKey)
	if !exists {
		p.log.Debugf("Environment variable %s not set, using default", fullKey)
		return defaultValue
	}
	return value
}

// Require gets an environment variable or returns an error if not present or empty
func (p *EnvProvider) Require(key string) (string, error) {
	fullKey := p.getFullKey(key)
	value, exists := p.lookup(fullKey)
	if !exists || value == "" {
		return "", fmt.Errorf("%w: %s", ErrEnvVarEmpty, fullKey)
	}
	return value, nil
}

// GetBool gets a boolean environment variable or returns a default value
func (p *EnvProvider) GetBool(key string, defaultValue bool) bool {
	fullKey := p.getFullKey(key)
	valueStr, exists := p.lookup(fullKey)
	if !exists {
		return defaultValue
	}

	switch strings.ToLower(valueStr) {
	case "true", "yes", "y", "1", "on", "enabled":
		return true
	case "false", "no", "n", "0", "off", "disabled":
		return false
	default:
		p.log.Warnf("Invalid boolean value for environment variable %s: %s, using default: %v",
			fullKey, valueStr, defaultValue)
		return defaultValue
	}
}

// IsSet checks if an environment variable is set
func (p *EnvProvider) IsSet(key string) bool {
	_, exists := p.lookup(p.getFullKey(key))
	return exists
}

// getFullKey returns the prefixed environment variable key
func (p *EnvProvider) getFullKey(key string) string {
	if p.Prefix == "" {
		return key
	}
	return fmt.Sprintf("%s_%s", p.Prefix, key)
}

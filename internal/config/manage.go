package config

import (
	"fmt"
	"strconv"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey validates value and writes it to the config file. Secrets are
// written to the secrets file instead.
func SetKey(key, value string) error {
	return setKeyWith(newFileBackend(), newSecretsFile(), key, value)
}

type secretWriter interface {
	Set(key, value string) error
}

func setKeyWith(b ConfigBackend, sw secretWriter, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return sw.Set(key, value)
	}
	if _, err := parseValue(s, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if s.typ == kInt {
		i, _ := strconv.Atoi(value)
		return b.SetInt(key, i)
	}
	return b.SetString(key, value)
}

// ValidKeys returns the names of every settable key, secrets included.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}

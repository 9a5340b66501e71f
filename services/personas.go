package services

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Persona is one named agent personality. The prompt text lives in an external
// YAML resource, not in the relay code.
type Persona struct {
	Key            string `mapstructure:"-"`
	DisplayName    string `mapstructure:"display_name"`
	SystemPrompt   string `mapstructure:"system_prompt"`
	FirstGreeting  string `mapstructure:"first_greeting"`
	ReturnGreeting string `mapstructure:"return_greeting"`
}

// PersonaStore loads and serves the persona catalog.
type PersonaStore struct {
	personas   map[string]Persona
	defaultKey string
}

// LoadPersonas reads the persona catalog from a YAML file.
func LoadPersonas(path string) (*PersonaStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read persona catalog: %w", err)
	}

	raw := map[string]Persona{}
	if err := v.UnmarshalKey("personas", &raw); err != nil {
		return nil, fmt.Errorf("failed to parse persona catalog: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("persona catalog %s defines no personas", path)
	}

	defaultKey := v.GetString("default")
	if _, ok := raw[defaultKey]; !ok {
		for key := range raw {
			defaultKey = key
			break
		}
	}

	personas := make(map[string]Persona, len(raw))
	for key, p := range raw {
		p.Key = key
		if p.DisplayName == "" {
			p.DisplayName = capitalize(key)
		}
		personas[key] = p
	}

	slog.Info("Persona catalog loaded", "file", path, "count", len(personas), "default", defaultKey)
	return &PersonaStore{personas: personas, defaultKey: defaultKey}, nil
}

// Get returns the persona for a key, falling back to the default entry for
// unknown keys.
func (s *PersonaStore) Get(key string) Persona {
	if p, ok := s.personas[key]; ok {
		return p
	}
	return s.personas[s.defaultKey]
}

// DefaultKey returns the catalog's default persona key.
func (s *PersonaStore) DefaultKey() string {
	return s.defaultKey
}

// Keys lists the available persona keys.
func (s *PersonaStore) Keys() []string {
	keys := make([]string, 0, len(s.personas))
	for key := range s.personas {
		keys = append(keys, key)
	}
	return keys
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

package config

import (
	"errors"
	"testing"
)

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		cfgKey  string
		wantKey string
		wantSrc KeySource
	}{
		{"environment wins", "sk-ant-env-key", "sk-ant-config-key", "sk-ant-env-key", KeySourceEnv},
		{"from config", "", "sk-ant-config-key", "sk-ant-config-key", KeySourceConfig},
		{"unexpanded reference", "", "${SWARMER_TEST_UNSET_KEY}", "", KeySourceNone},
		{"nothing configured", "", "", "", KeySourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANTHROPIC_API_KEY", tt.env)
			cfg := &Config{Anthropic: AnthropicConfig{APIKey: tt.cfgKey}}
			key, src := ResolveAPIKey(cfg)
			if key != tt.wantKey || src != tt.wantSrc {
				t.Errorf("ResolveAPIKey() = %q, %q; want %q, %q", key, src, tt.wantKey, tt.wantSrc)
			}
		})
	}
}

func TestGetAPIKey_Missing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := GetAPIKey(nil); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("GetAPIKey(nil) error = %v, want ErrNoAPIKey", err)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := map[string]string{
		"":                            "(not set)",
		"sk-ant-short":                "***",
		"sk-ant-REDACTED": "sk-ant-...klmn",
	}
	for in, want := range tests {
		if got := MaskAPIKey(in); got != want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}

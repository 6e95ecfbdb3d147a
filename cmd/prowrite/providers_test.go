package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/prowrite/internal/config"
	"github.com/cgast/prowrite/pkg/oracle"
)

func TestNewRegistry(t *testing.T) {
	pc := config.ProviderConfig{
		OpenAI:    config.OpenAIConfig{APIKey: "sk-test"},
		Anthropic: config.AnthropicConfig{APIKey: "sk-ant-test"},
	}
	reg := newRegistry(pc, nil)

	tests := []struct {
		spec string
		name string
	}{
		{"gpt-4o", "openai:gpt-4o"},
		{"claude-sonnet-4-20250514", "anthropic:claude-sonnet-4-20250514"},
		{"openai:my-finetune", "openai:my-finetune"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			a, err := reg.ResolveWrapped(tt.spec, config.DefaultConfig().ModelOptions(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.name, a.Name())
		})
	}

	_, err := newRegistry(config.ProviderConfig{}, nil).Resolve("gpt-4o")
	assert.ErrorContains(t, err, "api key")
}

func TestBuildJudge(t *testing.T) {
	pc := config.ProviderConfig{
		OpenAI:    config.OpenAIConfig{APIKey: "sk-test"},
		Anthropic: config.AnthropicConfig{APIKey: "sk-ant-test"},
	}
	reg := newRegistry(pc, nil)

	cfg := config.DefaultConfig()
	_, err := buildJudge(cfg, pc, reg, cfg.Limiters())
	assert.ErrorContains(t, err, "no judge configured")

	cfg.Judge.Models = []string{"claude-sonnet-4"}
	j, err := buildJudge(cfg, pc, reg, cfg.Limiters())
	require.NoError(t, err)
	assert.Equal(t, "anthropic:claude-sonnet-4", j.Name())

	cfg.Judge.Models = []string{"claude-sonnet-4", "gpt-4o"}
	cfg.Judge.Endpoint = "http://localhost:9000/judge"
	j, err = buildJudge(cfg, pc, reg, cfg.Limiters())
	require.NoError(t, err)
	ens, ok := j.(*oracle.Ensemble)
	require.True(t, ok)
	assert.Len(t, ens.Members(), 3)

	cfg.Judge.Models = []string{"mystery-model"}
	_, err = buildJudge(cfg, pc, reg, cfg.Limiters())
	assert.ErrorContains(t, err, "cannot infer provider")
}

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cgast/prowrite/internal/config"
	"github.com/cgast/prowrite/pkg/model"
	"github.com/cgast/prowrite/pkg/oracle"
)

// newRegistry registers the OpenAI and Anthropic factories with the
// configured credentials. Missing keys surface when a model is resolved.
func newRegistry(pc config.ProviderConfig, logger *slog.Logger) *model.Registry {
	reg := model.NewRegistry()
	reg.Register("openai", func(name string) (model.Adapter, error) {
		return model.NewOpenAI(model.OpenAIConfig{
			APIKey:  pc.OpenAI.APIKey,
			BaseURL: pc.OpenAI.BaseURL,
			Model:   name,
			Logger:  logger,
		})
	})
	reg.Register("anthropic", func(name string) (model.Adapter, error) {
		return model.NewAnthropic(model.AnthropicConfig{
			APIKey:  pc.Anthropic.APIKey,
			BaseURL: pc.Anthropic.BaseURL,
			Model:   name,
			Logger:  logger,
		})
	})
	return reg
}

// buildJudge assembles the judge oracle from the configured judge models
// and optional HTTP endpoint. Several judges are combined in an ensemble.
// Judge models share lims with the model under test.
func buildJudge(cfg config.Config, pc config.ProviderConfig, reg *model.Registry, lims *model.Limiters) (oracle.Judge, error) {
	var judges []oracle.Judge
	for _, spec := range cfg.Judge.Models {
		a, err := reg.ResolveWrapped(spec, cfg.JudgeOptions(), lims)
		if err != nil {
			return nil, fmt.Errorf("judge %s: %w", spec, err)
		}
		judges = append(judges, oracle.NewModelJudge(a))
	}
	if cfg.Judge.Endpoint != "" {
		j := oracle.NewHTTPJudge(cfg.Judge.Endpoint, pc.Judge.Headers)
		judges = append(judges, oracle.WithTimeout(j, cfg.Timeouts.Judge))
	}

	switch len(judges) {
	case 0:
		return nil, errors.New("no judge configured (set judge.models or judge.endpoint)")
	case 1:
		return judges[0], nil
	}
	method, err := oracle.ParseMethod(cfg.Judge.Ensemble)
	if err != nil {
		return nil, err
	}
	return oracle.NewEnsemble(method, judges...), nil
}

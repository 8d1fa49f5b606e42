package main

import (
	"fmt"

	"github.com/rahul/veritas/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// newModel builds the reasoning engine for one provider entry.
func newModel(name string, p config.ProviderConfig) (llms.Model, error) {
	var (
		llm llms.Model
		err error
	)
	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		baseURL := p.BaseURL
		if baseURL == "" && name == "openrouter" {
			baseURL = openRouterBaseURL
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		llm, err = openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(p.APIKey),
			anthropic.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.BaseURL))
		}
		llm, err = anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
	if err != nil {
		return nil, fmt.Errorf("init provider %s: %w", name, err)
	}
	return llm, nil
}

// agentModel resolves the model one agent runs on and a stable identifier
// for response metadata.
func agentModel(cfg *config.Config, agentName string) (llms.Model, string, error) {
	name, p, ok := cfg.ProviderFor(agentName)
	if !ok {
		return nil, "", fmt.Errorf("no enabled provider for %s", agentName)
	}
	llm, err := newModel(name, p)
	if err != nil {
		return nil, "", err
	}
	return llm, name + "/" + p.Model, nil
}

package bootstrap

import (
	"rolechat/internal/adapter/provider/llm/azure"
	"rolechat/internal/adapter/provider/llm/gemini"
	applog "rolechat/internal/platform/log"
	"rolechat/internal/provider"
)

// NewProviderRegistry registers the supported LLM provider factories.
func NewProviderRegistry() *provider.Registry {
	reg := provider.NewRegistry()
	reg.Register(azure.Name, azure.Factory)
	reg.Register(gemini.Name, gemini.Factory)
	applog.Info("✅ Registered LLM providers", "providers", reg.Names())
	return reg
}

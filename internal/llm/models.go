package llm

import "strings"

var modelCatalogue = map[string][]string{
	ProviderOpenAI: {
		"gpt-4",
		"gpt-4-turbo-preview",
		"gpt-3.5-turbo",
		"gpt-3.5-turbo-16k",
	},
	ProviderAnthropic: {
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
		"claude-3-haiku-20240307",
		"claude-2.1",
	},
}

// AvailableModels returns the known chat models for provider, or an empty
// slice for providers without a static catalogue.
func AvailableModels(provider string) []string {
	models := modelCatalogue[strings.ToLower(provider)]
	return append([]string{}, models...)
}

// Providers returns the provider names accepted by NewTextGenerator.
func Providers() []string {
	return []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderDemo}
}

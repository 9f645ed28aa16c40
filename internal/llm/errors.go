package llm

import "errors"

var (
	// ErrMissingAPIKey is returned when a hosted provider has no API key in
	// configuration or environment.
	ErrMissingAPIKey = errors.New("api key not provided")

	// ErrUnsupportedProvider is returned for an unknown provider name.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrEmptyResponse is returned when a provider answers without content.
	ErrEmptyResponse = errors.New("empty response")
)

package config

// DefaultFallbackMessage is sent to the lead when a reply is withheld
// or blocked and no custom fallback is configured.
const DefaultFallbackMessage = "Thanks for your message! A member of our team will follow up with you shortly."

// DefaultConfig returns the configuration used when no .convoguard.yml
// exists and no overrides are set.
func DefaultConfig() *Config {
	return &Config{
		Model:                   "gpt-4o",
		EvaluatorModel:          "gpt-4o-mini",
		EmbeddingModel:          "text-embedding-3-small",
		SemanticRouting:         true,
		Port:                    8080,
		DataDir:                 ".convoguard",
		AllowAllOrigins:         false,
		EvaluatorTimeoutSeconds: 10,
		FallbackMessage:         DefaultFallbackMessage,
		Webhooks: WebhookConfig{
			MinSeverity: "critical",
		},
	}
}

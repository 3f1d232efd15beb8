package config

// Config is the top-level convoguard configuration, corresponding to .convoguard.yml.
type Config struct {
	Model                   string        `yaml:"model" koanf:"model"`
	EvaluatorModel          string        `yaml:"evaluator_model" koanf:"evaluator_model"`
	EmbeddingModel          string        `yaml:"embedding_model" koanf:"embedding_model"`
	SemanticRouting         bool          `yaml:"semantic_routing" koanf:"semantic_routing"`
	Port                    int           `yaml:"port" koanf:"port"`
	DataDir                 string        `yaml:"data_dir" koanf:"data_dir"`
	AllowAllOrigins         bool          `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	EvaluatorTimeoutSeconds int           `yaml:"evaluator_timeout_seconds" koanf:"evaluator_timeout_seconds"`
	FallbackMessage         string        `yaml:"fallback_message" koanf:"fallback_message"`
	Webhooks                WebhookConfig `yaml:"webhooks" koanf:"webhooks"`
}

// WebhookConfig holds outbound notification settings.
type WebhookConfig struct {
	URLs        []string `yaml:"urls" koanf:"urls"`
	MinSeverity string   `yaml:"min_severity" koanf:"min_severity"`
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// modelChoices pairs a reply model with the cheaper evaluator model
// recommended alongside it.
var modelChoices = []struct {
	Label     string
	Model     string
	Evaluator string
}{
	{"gpt-4o       — balanced replies, gpt-4o-mini evaluation", "gpt-4o", "gpt-4o-mini"},
	{"gpt-4o-mini  — fast & cheap end to end", "gpt-4o-mini", "gpt-4o-mini"},
	{"gpt-4.1      — highest quality replies, gpt-4o evaluation", "gpt-4.1", "gpt-4o"},
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .convoguard.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to convoguard! Let's configure your deployment.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Model selection.
	labels := make([]string, len(modelChoices))
	for i, c := range modelChoices {
		labels[i] = c.Label
	}
	modelPrompt := promptui.Select{
		Label: "Select reply model",
		Items: labels,
	}
	modelIdx, _, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model selection: %w", err)
	}
	cfg.Model = modelChoices[modelIdx].Model
	cfg.EvaluatorModel = modelChoices[modelIdx].Evaluator

	// 2. Semantic routing.
	routingPrompt := promptui.Select{
		Label: "Enable semantic persona routing (requires embedding calls)",
		Items: []string{"yes", "no"},
	}
	routingIdx, _, err := routingPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("routing selection: %w", err)
	}
	cfg.SemanticRouting = routingIdx == 0

	// 3. Listen port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: strconv.Itoa(cfg.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Port, _ = strconv.Atoi(portStr)

	// 4. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory (database and seeds)",
		Default: cfg.DataDir,
	}
	dataDir, err := dataPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	cfg.DataDir = dataDir

	// 5. Webhook endpoints.
	webhookPrompt := promptui.Prompt{
		Label:   "Alert webhook URLs (comma-separated, leave blank for none)",
		Default: "",
	}
	webhookStr, err := webhookPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("webhook urls: %w", err)
	}
	cfg.Webhooks.URLs = splitAndTrim(webhookStr)

	if os.Getenv(APIKeyEnvVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running convoguard serve.\n", APIKeyEnvVar)
	}

	if err := cfg.Save(DefaultPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultPath)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and drops empty entries.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}

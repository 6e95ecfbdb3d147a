package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# prowrite runtime configuration
log_level: info
log_format: text
tasks_dir: tasks
results_dir: results
concurrency: 4

timeouts:
  model: 120s
  judge: 60s

rate_limit:
  requests_per_second: 0   # 0 disables limiting
  burst: 1

scoring:
  word_budget: 500
  balance_k: 0.5
  judge_threshold: 50
  pass_threshold: 70
  seed: 0                  # 0 picks a seed per run; it is recorded in the report
  weights:
    constraint: 0.30
    clarity: 0.25
    balance: 0.20
    appropriateness: 0.15
    revision: 0.10

judge:
  models: [claude-sonnet-4-20250514]
  ensemble: mean           # mean or median
  endpoint: ""

store:
  path: .prowrite/results.db

inspector:
  enabled: false
  port: 7070

serve:
  allowed_paths: []        # empty means tasks_dir
  denied_paths: [.prowrite]
  max_task_size: 1MB
`

const providersTemplate = `# Provider credentials. ${VAR} references are read from the environment,
# and OPENAI_API_KEY, ANTHROPIC_API_KEY and GITHUB_TOKEN override these values.
openai:
  api_key: "${OPENAI_API_KEY}"
  base_url: ""
anthropic:
  api_key: "${ANTHROPIC_API_KEY}"
github:
  token: "${GITHUB_TOKEN}"
  default_repo: ""
judge:
  headers: {}
`

// Init writes default config and provider files into dir. Existing files
// are left alone. It returns the paths it created.
func Init(dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	var created []string
	files := []struct{ name, body string }{
		{ConfigFile, configTemplate},
		{ProvidersFile, providersTemplate},
	}
	for _, f := range files {
		name, body := f.name, f.body
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		mode := os.FileMode(0o644)
		if name == ProvidersFile {
			mode = 0o600
		}
		if err := os.WriteFile(path, []byte(body), mode); err != nil {
			return created, fmt.Errorf("write %s: %w", path, err)
		}
		created = append(created, path)
	}
	return created, nil
}

package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter config in the given format ("toml" or "yaml").
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml", "":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config format: %s", format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `# interactivectl robot config
api_base_url = "https://beam.pro/api/v1/"
metrics_addr = ""

# username/password, or oauth_token. INTERACTIVECTL_USERNAME,
# INTERACTIVECTL_PASSWORD and INTERACTIVECTL_TOKEN override these.
username = ""
password = ""
# oauth_token = ""

timeout = "30s"
auto_reconnect = true
max_reconnect_attempts = -1
reconnect_delay = "5s"

# propagate | log
handler_errors = "propagate"
# inline | queued
handler_mode = "inline"
`

const yamlTemplate = `# interactivectl robot config
api_base_url: https://beam.pro/api/v1/
metrics_addr: ""
username: ""
password: ""
timeout: 30s
auto_reconnect: true
max_reconnect_attempts: -1
reconnect_delay: 5s
handler_errors: propagate
handler_mode: inline
`

package configs

import (
	"os"

	"github.com/hilthontt/remotepad/internal/infrastructure/env"
)

// DetermineConfigPath resolves the config file from the --config flag value,
// then REMOTEPAD_CONFIG, then a few well-known locations. An empty result means
// run on defaults.
func DetermineConfigPath(flagValue string) string {
	configPath := flagValue

	if configPath == "" {
		configPath = env.GetString("REMOTEPAD_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"../../config.yaml", // keep for local dev
			"/etc/remotepad/config.yaml",
			"/app/config.yaml", // common in Docker
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}

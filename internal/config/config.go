package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"lxmchat/internal/constants"
	"lxmchat/internal/models"
)

// LoadConfig reads the JSON configuration file, applies environment
// overrides and defaults, and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvironmentOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Secrets come from the environment in deployments; config-file values are
// a development convenience.
func applyEnvironmentOverrides(cfg *models.Config) {
	if v := os.Getenv("LXMCHAT_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("LXMCHAT_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("LXMCHAT_ROOM_SECRET"); v != "" {
		cfg.RoomSecret = v
	}
	if v := os.Getenv("LXMCHAT_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("LXMCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *models.Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = constants.DefaultRetentionDays
	}
	if cfg.Media.MaxSizeMB <= 0 {
		cfg.Media.MaxSizeMB = constants.DefaultMaxMediaSizeMB
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		cfg.Outbox.MaxAttempts = constants.DefaultSendMaxAttempts
	}
	if cfg.Outbox.BackoffBaseMs <= 0 {
		cfg.Outbox.BackoffBaseMs = constants.DefaultSendBackoffBaseMs
	}
	if cfg.Outbox.BackoffMaxMs <= 0 {
		cfg.Outbox.BackoffMaxMs = constants.DefaultSendBackoffMaxMs
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = constants.DefaultRetryBatchSize
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = constants.DefaultDiagnosticsPort
	}
	// Transport defaults are applied where the session config is built.
}

func validateConfig(cfg *models.Config) error {
	var missing []string

	if cfg.RelayURL == "" {
		missing = append(missing, "relayURL")
	}
	if cfg.UserID == "" {
		missing = append(missing, "userId")
	}
	if cfg.Database.Path == "" {
		missing = append(missing, "database.path")
	}
	if cfg.Media.Dir == "" {
		missing = append(missing, "media.dir")
	}
	if len(cfg.Rooms) == 0 {
		missing = append(missing, "rooms")
	}
	if len(missing) > 0 {
		return models.ConfigError{Message: "missing required config: " + strings.Join(missing, ", ")}
	}

	if !strings.HasPrefix(cfg.RelayURL, "ws://") && !strings.HasPrefix(cfg.RelayURL, "wss://") {
		return models.ConfigError{Message: "relayURL must be a ws:// or wss:// endpoint"}
	}

	seen := make(map[string]bool, len(cfg.Rooms))
	for i, room := range cfg.Rooms {
		if room.RoomID == "" {
			return models.ConfigError{Message: fmt.Sprintf("rooms[%d]: roomId is required", i)}
		}
		if room.PeerID == "" {
			return models.ConfigError{Message: fmt.Sprintf("rooms[%d]: peerId is required", i)}
		}
		if seen[room.RoomID] {
			return models.ConfigError{Message: "duplicate room configuration: " + room.RoomID}
		}
		seen[room.RoomID] = true
	}

	return nil
}

package models

// ConfigError indicates an invalid or incomplete configuration file.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type MediaConfig struct {
	Dir       string `json:"dir"`
	MaxSizeMB int    `json:"maxSizeMB"`
}

type TransportConfig struct {
	HeartbeatIntervalSec int `json:"heartbeatIntervalSec"`
	HeartbeatTimeoutSec  int `json:"heartbeatTimeoutSec"`
	ReconnectBaseMs      int `json:"reconnectBaseMs"`
	ReconnectMaxMs       int `json:"reconnectMaxMs"`
	ReconnectJitterMs    int `json:"reconnectJitterMs"`
	ReconnectMaxAttempts int `json:"reconnectMaxAttempts"`
}

type OutboxConfig struct {
	MaxAttempts   int `json:"maxAttempts"`
	BackoffBaseMs int `json:"backoffBaseMs"`
	BackoffMaxMs  int `json:"backoffMaxMs"`
	BatchSize     int `json:"batchSize"`
}

// RoomBindingConfig is the per-room steganographic placement configuration.
// TemplateID and SlotID are masked to 8 bits when loaded; out-of-range
// values are truncated, not rejected.
type RoomBindingConfig struct {
	RoomID        string `json:"roomId"`
	PeerID        string `json:"peerId"`
	ContainerType uint8  `json:"containerType"`
	PayloadFormat uint8  `json:"payloadFormat"`
	TemplateID    int    `json:"templateId"`
	SlotID        int    `json:"slotId"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type Config struct {
	RelayURL      string              `json:"relayURL"`
	AuthToken     string              `json:"authToken,omitempty"`
	RoomSecret    string              `json:"roomSecret,omitempty"`
	UserID        string              `json:"userId"`
	LogLevel      string              `json:"logLevel"`
	RetentionDays int                 `json:"retentionDays"`
	Database      DatabaseConfig      `json:"database"`
	Media         MediaConfig         `json:"media"`
	Transport     TransportConfig     `json:"transport"`
	Outbox        OutboxConfig        `json:"outbox"`
	Rooms         []RoomBindingConfig `json:"rooms"`
	Tracing       TracingConfig       `json:"tracing"`
	Server        ServerConfig        `json:"server"`
}

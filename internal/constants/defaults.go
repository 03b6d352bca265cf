package constants

// Default transport configuration values
const (
	DefaultHeartbeatIntervalSec = 6
	DefaultHeartbeatTimeoutSec  = 25
	DefaultReconnectBaseMs      = 1000
	DefaultReconnectMaxMs       = 30000
	DefaultReconnectJitterMs    = 500
	DefaultReconnectMaxAttempts = 8
)

// Default outbox configuration values
const (
	DefaultSendMaxAttempts   = 10
	DefaultSendBackoffBaseMs = 2000
	DefaultSendBackoffMaxMs  = 300000
	DefaultRetryBatchSize    = 80
	DefaultMaxMediaSizeMB    = 20
)

// Default storage configuration values
const (
	DefaultRetentionDays           = 90
	DefaultCleanupIntervalHours    = 24
	DefaultDatabaseRetryAttempts   = 3
	DefaultDatabaseRetryBackoffMs  = 1000
	DefaultDatabaseMaxBackoffMs    = 60000
	DefaultOutboxCheckIntervalSec  = 60
	DefaultOutboxStaleThresholdSec = 300
)

// Default diagnostics server values
const (
	DefaultDiagnosticsPort       = 9480
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 10
)

// Encryption parameters for the at-rest body encryptor
const (
	EncryptionSalt = "lxmchat-store-salt-v1"
)

// Privacy settings for log sanitization
const (
	DefaultIDMaskLength = 4
)

package models

// Parameters for the at-rest body encryptor (AES-256-GCM, PBKDF2 key).
const (
	NonceSize  = 12
	KeySize    = 32
	Iterations = 100000
)

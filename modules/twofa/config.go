package twofa

// Config holds the two-factor service settings, populated from the
// environment.
type Config struct {
	// Issuer is the service name shown in authenticator apps.
	Issuer string `env:"TWOFA_ISSUER" envDefault:"Chatter"`

	// SkewWindow is the number of 30s steps tolerated on either side of
	// the current one when verifying a code.
	SkewWindow int `env:"TWOFA_SKEW_WINDOW" envDefault:"1"`

	// BackupCodeCount is the number of recovery codes issued on enable.
	BackupCodeCount int `env:"TWOFA_BACKUP_CODES" envDefault:"8"`

	// QRCodeSize is the provisioning QR edge length in pixels.
	QRCodeSize int `env:"TWOFA_QR_SIZE" envDefault:"200"`

	// EncryptionKey, when set, is a base64-encoded 32-byte AES key used
	// to encrypt stored secrets at rest.
	EncryptionKey string `env:"TOTP_ENCRYPTION_KEY"`
}

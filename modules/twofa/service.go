package twofa

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatterhq/twofactor/pkg/backupcode"
	"github.com/chatterhq/twofactor/pkg/qrcode"
	"github.com/chatterhq/twofactor/pkg/totp"
)

// Service implements the two-factor enrollment and validation protocol on
// top of a Store.
type Service struct {
	cfg    Config
	store  Store
	log    *slog.Logger
	now    func() time.Time
	encKey []byte // nil means secrets are stored as plain Base32
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for TOTP verification, letting
// tests pin the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the two-factor service. When cfg.EncryptionKey is set,
// secrets are encrypted with AES-256-GCM before they reach the store.
func NewService(cfg Config, store Store, opts ...Option) (*Service, error) {
	if cfg.SkewWindow < 0 {
		cfg.SkewWindow = totp.DefaultSkew
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = backupcode.DefaultCount
	}

	s := &Service{
		cfg:   cfg,
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.EncryptionKey != "" {
		key, err := totp.DecodeEncryptionKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		s.encKey = key
	}
	return s, nil
}

// SetupResult is returned by Setup for one-time display to the user. The
// secret never leaves the service again after this response.
type SetupResult struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
	QRCodeURL  string `json:"qrCodeUrl"`
}

// VerifyResult is returned by VerifyAndEnable. BackupCodes is populated
// exactly once, on the call that enabled the record; they are not
// retrievable afterwards.
type VerifyResult struct {
	Valid       bool     `json:"valid"`
	Enabled     bool     `json:"enabled,omitempty"`
	BackupCodes []string `json:"backupCodes,omitempty"`
}

// ValidateResult is returned by ValidateLogin.
type ValidateResult struct {
	Valid          bool `json:"valid"`
	UsedBackupCode bool `json:"usedBackupCode,omitempty"`
}

// Setup begins (or restarts) enrollment for userID: it generates a fresh
// secret, stores it disabled with no backup codes, and returns the secret
// with its provisioning URI and QR image. Re-running Setup overwrites any
// prior record, so a half-finished or compromised enrollment never leaves a
// stale secret valid.
func (s *Service) Setup(ctx context.Context, userID uuid.UUID, accountLabel string) (SetupResult, error) {
	secret, err := totp.GenerateSecret()
	if err != nil {
		return SetupResult{}, err
	}

	if accountLabel == "" {
		accountLabel = userID.String()
	}
	uri, err := totp.ProvisioningURI(totp.URIParams{
		Secret:      secret,
		AccountName: accountLabel,
		Issuer:      s.cfg.Issuer,
	})
	if err != nil {
		return SetupResult{}, err
	}
	qr, err := qrcode.DataURI(uri, s.cfg.QRCodeSize)
	if err != nil {
		return SetupResult{}, err
	}

	stored, err := s.sealSecret(secret)
	if err != nil {
		return SetupResult{}, err
	}
	rec := Record{
		UserID:      userID,
		Secret:      stored,
		IsEnabled:   false,
		BackupCodes: []string{},
	}
	if err := s.store.UpsertRecord(ctx, rec); err != nil {
		return SetupResult{}, errors.Join(ErrStoreUnavailable, err)
	}

	s.log.InfoContext(ctx, "two-factor enrollment started", "user_id", userID)
	return SetupResult{Secret: secret, OTPAuthURL: uri, QRCodeURL: qr}, nil
}

// VerifyAndEnable checks a code during enrollment. The first valid code
// enables the record and mints backup codes; once enabled, further valid
// codes only confirm and never regenerate anything. An invalid code mutates
// nothing.
func (s *Service) VerifyAndEnable(ctx context.Context, userID uuid.UUID, code string) (VerifyResult, error) {
	rec, err := s.getRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return VerifyResult{}, ErrNotSetUp
		}
		return VerifyResult{}, err
	}

	ok, err := s.verifyTOTP(ctx, rec, code)
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		return VerifyResult{Valid: false}, nil
	}
	if rec.IsEnabled {
		return VerifyResult{Valid: true}, nil
	}

	codes, err := backupcode.Generate(s.cfg.BackupCodeCount)
	if err != nil {
		return VerifyResult{}, err
	}
	flipped, err := s.store.EnableWithCodes(ctx, userID, codes)
	if err != nil {
		return VerifyResult{}, errors.Join(ErrStoreUnavailable, err)
	}
	if !flipped {
		// Either a concurrent verification won the enable race (its codes
		// stand) or the record was deleted mid-flight. Re-read to tell the
		// two apart rather than report success for a user whose record is
		// gone.
		if _, err := s.getRecord(ctx, userID); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return VerifyResult{}, ErrNotSetUp
			}
			return VerifyResult{}, err
		}
		return VerifyResult{Valid: true}, nil
	}

	s.log.InfoContext(ctx, "two-factor enabled", "user_id", userID)
	return VerifyResult{Valid: true, Enabled: true, BackupCodes: codes}, nil
}

// ValidateLogin checks a code for a user who is mid-login and has no
// session yet. The TOTP code is tried first, then the backup codes; a spent
// backup code is removed atomically before success is reported.
//
// This is the service's highest-risk entry point: identity is merely
// claimed, so callers must throttle attempts per user (the HTTP router does
// this with a token bucket).
func (s *Service) ValidateLogin(ctx context.Context, userID uuid.UUID, code string) (ValidateResult, error) {
	rec, err := s.getRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ValidateResult{}, ErrNotEnabled
		}
		return ValidateResult{}, err
	}
	if !rec.IsEnabled {
		// A provisioning record must never gate a login.
		return ValidateResult{}, ErrNotEnabled
	}

	ok, err := s.verifyTOTP(ctx, rec, code)
	if err != nil {
		return ValidateResult{}, err
	}
	if ok {
		return ValidateResult{Valid: true}, nil
	}

	consumed, err := s.store.ConsumeBackupCode(ctx, userID, code)
	if err != nil {
		return ValidateResult{}, errors.Join(ErrStoreUnavailable, err)
	}
	if consumed {
		s.log.InfoContext(ctx, "backup code used", "user_id", userID)
		return ValidateResult{Valid: true, UsedBackupCode: true}, nil
	}
	return ValidateResult{Valid: false}, nil
}

// Disable turns two-factor auth off by deleting the record. It demands a
// live TOTP code: backup codes are rejected here, so possession of the
// authenticator itself is required to weaken the account.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	rec, err := s.getRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, ErrNotEnabled
		}
		return false, err
	}

	ok, err := s.verifyTOTP(ctx, rec, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := s.store.DeleteRecord(ctx, userID); err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	s.log.InfoContext(ctx, "two-factor disabled", "user_id", userID)
	return true, nil
}

// Status reports whether userID has two-factor auth fully enabled. It never
// exposes the secret or the backup codes.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (bool, error) {
	rec, err := s.getRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.IsEnabled, nil
}

// RequiresTwoFA is the pre-login projection of Status: the login flow calls
// it with a claimed user ID to decide whether to prompt for a code.
func (s *Service) RequiresTwoFA(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.Status(ctx, userID)
}

func (s *Service) getRecord(ctx context.Context, userID uuid.UUID) (Record, error) {
	rec, err := s.store.GetRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, errors.Join(ErrStoreUnavailable, err)
	}
	return rec, nil
}

// verifyTOTP decodes the stored secret and checks the code against the
// configured skew window. Decode and decrypt failures mean the stored
// record is corrupt and are surfaced as ErrCorruptedSecret, never as a
// code mismatch.
func (s *Service) verifyTOTP(ctx context.Context, rec Record, code string) (bool, error) {
	secret, err := s.openSecret(rec.Secret)
	if err != nil {
		s.log.ErrorContext(ctx, "two-factor secret corrupted", "user_id", rec.UserID, "error", err)
		return false, errors.Join(ErrCorruptedSecret, err)
	}

	ok, err := totp.VerifyCode(secret, code, s.now(), s.cfg.SkewWindow)
	if err != nil {
		s.log.ErrorContext(ctx, "two-factor secret corrupted", "user_id", rec.UserID, "error", err)
		return false, errors.Join(ErrCorruptedSecret, err)
	}
	return ok, nil
}

func (s *Service) sealSecret(secret string) (string, error) {
	if s.encKey == nil {
		return secret, nil
	}
	return totp.EncryptSecret(secret, s.encKey)
}

func (s *Service) openSecret(stored string) (string, error) {
	if s.encKey == nil {
		return stored, nil
	}
	return totp.DecryptSecret(stored, s.encKey)
}

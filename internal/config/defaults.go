package config

import (
	"fmt"
	"strings"
	"unicode"
)

// Execution defaults.
const (
	DefaultConcurrency       = 2
	DefaultMaxRetries        = 2
	DefaultRetryInitialDelay = "1s"
	DefaultRetryMaxDelay     = "30s"
	DefaultUploadTimeout     = "5m"
	DefaultSigningTimeout    = "30s"
	DefaultStagingDir        = "build/relpub"
	DefaultLedgerPath        = ".relpub/ledger.db"
	DefaultNotifySubject     = "relpub.publications"
	DefaultSigningKeyKey     = "signingKey"
	DefaultSigningPassKey    = "signingPassword"
)

// DefaultChecksums are written next to every uploaded file unless configured otherwise.
var DefaultChecksums = []ChecksumAlgorithm{ChecksumMD5, ChecksumSHA1}

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// defaultAppliers run in order; later domains may rely on earlier ones.
func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		&ArtifactsDefaultApplier{},
		&DestinationDefaultApplier{},
		&SigningDefaultApplier{},
		&ExecutionDefaultApplier{},
		&LedgerDefaultApplier{},
		&NotifyDefaultApplier{},
		&MonitoringDefaultApplier{},
	}
}

func applyDefaults(cfg *Config) error {
	for _, applier := range defaultAppliers() {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("apply %s defaults: %w", applier.Domain(), err)
		}
	}
	return nil
}

// ArtifactsDefaultApplier handles artifact input defaults.
type ArtifactsDefaultApplier struct{}

func (a *ArtifactsDefaultApplier) Domain() string { return "artifacts" }

func (a *ArtifactsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Artifacts.StagingDir == "" {
		cfg.Artifacts.StagingDir = DefaultStagingDir
	}
	if cfg.Project.Packaging == "" {
		cfg.Project.Packaging = "jar"
	}
	if len(cfg.Checksums) == 0 {
		cfg.Checksums = append([]ChecksumAlgorithm(nil), DefaultChecksums...)
	}
	for i, c := range cfg.Checksums {
		if n := NormalizeChecksum(string(c)); n != "" {
			cfg.Checksums[i] = n
		}
	}
	return nil
}

// DestinationDefaultApplier fills credential kinds and key names.
type DestinationDefaultApplier struct{}

func (d *DestinationDefaultApplier) Domain() string { return "destinations" }

func (d *DestinationDefaultApplier) ApplyDefaults(cfg *Config) error {
	for i := range cfg.Destinations {
		dest := &cfg.Destinations[i]
		if dest.CredentialKind == "" {
			dest.CredentialKind = CredentialNone
		} else if k := NormalizeCredentialKind(string(dest.CredentialKind)); k != "" {
			dest.CredentialKind = k
		}

		prefix := lowerCamel(dest.Name)
		switch dest.CredentialKind {
		case CredentialBasic:
			if dest.CredentialKeys.UsernameKey == "" {
				dest.CredentialKeys.UsernameKey = prefix + "User"
			}
			if dest.CredentialKeys.PasswordKey == "" {
				dest.CredentialKeys.PasswordKey = prefix + "Password"
			}
		case CredentialToken:
			if dest.CredentialKeys.PasswordKey == "" {
				dest.CredentialKeys.PasswordKey = prefix + "Token"
			}
		}
	}
	return nil
}

// SigningDefaultApplier handles signing key lookup defaults.
type SigningDefaultApplier struct{}

func (s *SigningDefaultApplier) Domain() string { return "signing" }

func (s *SigningDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Signing.KeyFile == "" && cfg.Signing.KeyKey == "" {
		cfg.Signing.KeyKey = DefaultSigningKeyKey
	}
	if cfg.Signing.PassphraseKey == "" {
		cfg.Signing.PassphraseKey = DefaultSigningPassKey
	}
	return nil
}

// ExecutionDefaultApplier handles retry, timeout and concurrency defaults.
type ExecutionDefaultApplier struct{}

func (e *ExecutionDefaultApplier) Domain() string { return "execution" }

func (e *ExecutionDefaultApplier) ApplyDefaults(cfg *Config) error {
	ex := &cfg.Execution
	if ex.Concurrency <= 0 {
		ex.Concurrency = DefaultConcurrency
	}
	// nil means omitted; an explicit 0 disables retries.
	if ex.MaxRetries == nil {
		n := DefaultMaxRetries
		ex.MaxRetries = &n
	} else if *ex.MaxRetries < 0 {
		n := 0
		ex.MaxRetries = &n
	}
	if ex.RetryBackoff == "" {
		ex.RetryBackoff = RetryBackoffLinear
	} else if m := NormalizeRetryBackoff(string(ex.RetryBackoff)); m != "" {
		ex.RetryBackoff = m
	}
	if ex.RetryInitialDelay == "" {
		ex.RetryInitialDelay = DefaultRetryInitialDelay
	}
	if ex.RetryMaxDelay == "" {
		ex.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if ex.UploadTimeout == "" {
		ex.UploadTimeout = DefaultUploadTimeout
	}
	if ex.SigningTimeout == "" {
		ex.SigningTimeout = DefaultSigningTimeout
	}
	return nil
}

// LedgerDefaultApplier handles ledger defaults.
type LedgerDefaultApplier struct{}

func (l *LedgerDefaultApplier) Domain() string { return "ledger" }

func (l *LedgerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = DefaultLedgerPath
	}
	return nil
}

// NotifyDefaultApplier handles notification defaults.
type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify.Enabled() && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}
	return nil
}

// MonitoringDefaultApplier handles logging defaults.
type MonitoringDefaultApplier struct{}

func (m *MonitoringDefaultApplier) Domain() string { return "monitoring" }

func (m *MonitoringDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Monitoring.Logging.Level = NormalizeLogLevel(string(cfg.Monitoring.Logging.Level))
	cfg.Monitoring.Logging.Format = NormalizeLogFormat(string(cfg.Monitoring.Logging.Format))
	return nil
}

// lowerCamel turns a destination name such as "maven-central" into "mavenCentral".
func lowerCamel(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for i, p := range parts {
		if i == 0 {
			b.WriteString(strings.ToLower(p[:1]) + p[1:])
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// SupportedSchemes lists the destination URL schemes a transport exists for.
var SupportedSchemes = []string{"http", "https", "file", "s3"}

// ValidateConfig validates the complete descriptor. Every failure is a
// configuration error raised before any network action.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	return validator.validate()
}

// configurationValidator coordinates validation across descriptor domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	checks := []func() error{
		cv.validateCoordinate,
		cv.validateArtifacts,
		cv.validateDestinations,
		cv.validateChecksums,
		cv.validateExecution,
		cv.validateNotify,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (cv *configurationValidator) validateCoordinate() error {
	_, err := cv.config.Coordinate.Resolve()
	return err
}

func (cv *configurationValidator) validateArtifacts() error {
	if strings.TrimSpace(cv.config.Artifacts.CompiledOutput) == "" {
		return configError("artifacts.compiled_output is required", "point it at the compiled jar or classes directory")
	}
	return nil
}

func (cv *configurationValidator) validateDestinations() error {
	if len(cv.config.Destinations) == 0 {
		return configError("at least one destination must be configured", "add an entry under destinations")
	}

	names := make(map[string]bool, len(cv.config.Destinations))
	for _, dest := range cv.config.Destinations {
		if strings.TrimSpace(dest.Name) == "" {
			return configError("destination name cannot be empty", "")
		}
		if names[dest.Name] {
			return configError(fmt.Sprintf("duplicate destination name: %s", dest.Name), "destination names must be unique")
		}
		names[dest.Name] = true

		if _, err := credentialKinds.Check(string(dest.CredentialKind)); err != nil {
			return destinationError(dest.Name, err.Error(), "use one of none, basic, token")
		}
		if dest.ReleaseURL == "" && dest.SnapshotURL == "" {
			return destinationError(dest.Name, "neither release_url nor snapshot_url is set", "configure at least one repository URL")
		}
		for field, raw := range map[string]string{"release_url": dest.ReleaseURL, "snapshot_url": dest.SnapshotURL} {
			if raw == "" {
				continue
			}
			if err := validateRepositoryURL(raw); err != nil {
				return destinationError(dest.Name, fmt.Sprintf("%s: %v", field, err),
					fmt.Sprintf("supported schemes: %s", strings.Join(SupportedSchemes, ", ")))
			}
		}
	}
	return nil
}

func (cv *configurationValidator) validateChecksums() error {
	seen := make(map[ChecksumAlgorithm]bool)
	for _, c := range cv.config.Checksums {
		algo, err := checksumAlgorithms.Check(string(c))
		if err != nil {
			return configError(err.Error(), "")
		}
		if seen[algo] {
			return configError(fmt.Sprintf("duplicate checksum algorithm: %s", algo), "")
		}
		seen[algo] = true
	}
	return nil
}

func (cv *configurationValidator) validateExecution() error {
	ex := cv.config.Execution
	if _, err := retryBackoffModes.Check(string(ex.RetryBackoff)); err != nil {
		return configError(err.Error(), "use fixed, linear or exponential")
	}
	for field, raw := range map[string]string{
		"retry_initial_delay": ex.RetryInitialDelay,
		"retry_max_delay":     ex.RetryMaxDelay,
		"upload_timeout":      ex.UploadTimeout,
		"signing_timeout":     ex.SigningTimeout,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return configError(fmt.Sprintf("execution.%s: invalid duration %q", field, raw), "use Go duration syntax such as 30s or 5m")
		}
		if d < 0 {
			return configError(fmt.Sprintf("execution.%s must not be negative", field), "")
		}
	}
	if ex.InitialDelay() > ex.MaxDelay() {
		return configError("execution.retry_initial_delay exceeds retry_max_delay", "")
	}
	return nil
}

func (cv *configurationValidator) validateNotify() error {
	if !cv.config.Notify.Enabled() {
		return nil
	}
	u, err := url.Parse(cv.config.Notify.NATSURL)
	if err != nil || u.Host == "" {
		return configError(fmt.Sprintf("notify.nats_url %q is not a valid URL", cv.config.Notify.NATSURL), "use nats://host:4222")
	}
	return nil
}

func validateRepositoryURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	scheme := strings.ToLower(u.Scheme)
	supported := false
	for _, s := range SupportedSchemes {
		if scheme == s {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if scheme != "file" && u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// InitialDelay returns the parsed retry_initial_delay.
func (e ExecutionConfig) InitialDelay() time.Duration { return parseDuration(e.RetryInitialDelay, DefaultRetryInitialDelay) }

// MaxDelay returns the parsed retry_max_delay.
func (e ExecutionConfig) MaxDelay() time.Duration { return parseDuration(e.RetryMaxDelay, DefaultRetryMaxDelay) }

// UploadTimeoutDuration returns the parsed upload_timeout.
func (e ExecutionConfig) UploadTimeoutDuration() time.Duration {
	return parseDuration(e.UploadTimeout, DefaultUploadTimeout)
}

// SigningTimeoutDuration returns the parsed signing_timeout.
func (e ExecutionConfig) SigningTimeoutDuration() time.Duration {
	return parseDuration(e.SigningTimeout, DefaultSigningTimeout)
}

func parseDuration(raw, fallback string) time.Duration {
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

func configError(msg, hint string) error {
	b := ferrors.ConfigError(msg)
	if hint != "" {
		b = b.WithHint(hint)
	}
	return b.Build()
}

func destinationError(name, msg, hint string) error {
	b := ferrors.ConfigError(fmt.Sprintf("destination %s: %s", name, msg)).WithContext("destination", name)
	if hint != "" {
		b = b.WithHint(hint)
	}
	return b.Build()
}

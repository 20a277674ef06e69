package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/relpub/internal/coordinate"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// DefaultPath is the descriptor file name looked up when -c is not given.
const DefaultPath = "relpub.yaml"

// Config is the release descriptor. It is constructed once by Load and passed
// explicitly to every component; nothing mutates it after Load returns.
type Config struct {
	Version         string              `yaml:"version"`
	Coordinate      CoordinateConfig    `yaml:"coordinate"`
	Project         ProjectConfig       `yaml:"project,omitempty"`
	Artifacts       ArtifactsConfig     `yaml:"artifacts"`
	Inclusion       InclusionConfig     `yaml:"inclusion"`
	Destinations    []DestinationConfig `yaml:"destinations"`
	Signing         SigningConfig       `yaml:"signing,omitempty"`
	PropertiesFiles []string            `yaml:"properties_files,omitempty"`
	DotenvFiles     []string            `yaml:"dotenv_files,omitempty"`
	Checksums       []ChecksumAlgorithm `yaml:"checksums,omitempty"`
	Execution       ExecutionConfig     `yaml:"execution,omitempty"`
	Ledger          LedgerConfig        `yaml:"ledger,omitempty"`
	Notify          NotifyConfig        `yaml:"notify,omitempty"`
	Monitoring      MonitoringConfig    `yaml:"monitoring,omitempty"`
}

// CoordinateConfig is the raw group/artifact/version triple.
type CoordinateConfig struct {
	GroupID    string `yaml:"group_id"`
	ArtifactID string `yaml:"artifact_id"`
	Version    string `yaml:"version"`
}

// Resolve validates the triple and classifies the version.
func (c CoordinateConfig) Resolve() (coordinate.Coordinate, error) {
	return coordinate.New(c.GroupID, c.ArtifactID, c.Version)
}

// ProjectConfig carries the descriptive metadata written into the POM.
type ProjectConfig struct {
	Name            string            `yaml:"name,omitempty"`
	Description     string            `yaml:"description,omitempty"`
	URL             string            `yaml:"url,omitempty"`
	Packaging       string            `yaml:"packaging,omitempty"`
	Licenses        []LicenseConfig   `yaml:"licenses,omitempty"`
	Developers      []DeveloperConfig `yaml:"developers,omitempty"`
	SCM             SCMConfig         `yaml:"scm,omitempty"`
	IssueManagement IssueConfig       `yaml:"issue_management,omitempty"`
}

type LicenseConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url,omitempty"`
}

type DeveloperConfig struct {
	ID    string `yaml:"id,omitempty"`
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
}

type SCMConfig struct {
	Connection          string `yaml:"connection,omitempty"`
	DeveloperConnection string `yaml:"developer_connection,omitempty"`
	URL                 string `yaml:"url,omitempty"`
}

type IssueConfig struct {
	System string `yaml:"system,omitempty"`
	URL    string `yaml:"url,omitempty"`
}

// ArtifactsConfig points at the outputs of the external build. Each entry may be
// a jar file or a directory that is packaged into a jar.
type ArtifactsConfig struct {
	CompiledOutput string `yaml:"compiled_output"`
	SourceTree     string `yaml:"source_tree,omitempty"`
	DocOutput      string `yaml:"doc_output,omitempty"`
	StagingDir     string `yaml:"staging_dir,omitempty"`
}

// InclusionConfig is the configuration-driven inclusion policy for optional classifiers.
type InclusionConfig struct {
	IncludeSources bool `yaml:"include_sources"`
	IncludeJavadoc bool `yaml:"include_javadoc"`
}

// DestinationConfig is one target repository.
type DestinationConfig struct {
	Name            string         `yaml:"name"`
	ReleaseURL      string         `yaml:"release_url,omitempty"`
	SnapshotURL     string         `yaml:"snapshot_url,omitempty"`
	Publish         bool           `yaml:"publish"`
	Optional        bool           `yaml:"optional,omitempty"`
	RequiresSigning bool           `yaml:"requires_signing,omitempty"`
	CredentialKind  CredentialKind `yaml:"credential_kind,omitempty"`
	CredentialKeys  CredentialKeys `yaml:"credential_keys,omitempty"`
	Region          string         `yaml:"region,omitempty"`   // s3:// only
	Endpoint        string         `yaml:"endpoint,omitempty"` // s3:// only, S3-compatible stores
}

// CredentialKeys names the property keys holding this destination's secrets.
// Environment fallbacks are derived from them.
type CredentialKeys struct {
	UsernameKey string `yaml:"username_key,omitempty"`
	PasswordKey string `yaml:"password_key,omitempty"`
}

// SigningConfig locates the OpenPGP key used for detached signatures.
// KeyFile wins over KeyKey when both are set.
type SigningConfig struct {
	KeyFile       string `yaml:"key_file,omitempty"`
	KeyKey        string `yaml:"key_key,omitempty"`
	PassphraseKey string `yaml:"passphrase_key,omitempty"`
}

// ExecutionConfig bounds retries, timeouts and parallelism.
type ExecutionConfig struct {
	Concurrency       int              `yaml:"concurrency,omitempty"`
	MaxRetries        *int             `yaml:"max_retries,omitempty"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`
	UploadTimeout     string           `yaml:"upload_timeout,omitempty"`
	SigningTimeout    string           `yaml:"signing_timeout,omitempty"`
}

// Retries returns the configured retry bound.
func (e ExecutionConfig) Retries() int {
	if e.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *e.MaxRetries
}

type LedgerConfig struct {
	Path     string `yaml:"path,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Enabled reports whether result events should be published.
func (n NotifyConfig) Enabled() bool { return n.NATSURL != "" }

type MonitoringConfig struct {
	Logging     LoggingConfig `yaml:"logging,omitempty"`
	MetricsFile string        `yaml:"metrics_file,omitempty"`
}

type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// Load reads, expands, defaults and validates a descriptor.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError(fmt.Sprintf("descriptor not found: %s", configPath)).
				WithHint("run 'relpub init' to create one").
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read descriptor").Fatal().Build()
	}
	return Parse(data)
}

// Parse decodes descriptor bytes; ${VAR} references are expanded from the environment.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse descriptor").
			Fatal().
			WithHint("check the YAML syntax and field names").
			Build()
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

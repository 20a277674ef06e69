package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// Example returns the descriptor written by Init.
func Example() Config {
	retries := DefaultMaxRetries
	return Config{
		Version: "1",
		Coordinate: CoordinateConfig{
			GroupID:    "com.beust",
			ArtifactID: "jcommander",
			Version:    "1.79-SNAPSHOT",
		},
		Project: ProjectConfig{
			Name:        "JCommander",
			Description: "Command line parsing library for Java",
			URL:         "https://jcommander.org",
			Packaging:   "jar",
			Licenses: []LicenseConfig{
				{Name: "Apache-2.0", URL: "https://www.apache.org/licenses/LICENSE-2.0"},
			},
			Developers: []DeveloperConfig{{ID: "cbeust", Name: "Cedric Beust", Email: "cedric@beust.com"}},
			SCM: SCMConfig{
				Connection: "scm:git:git://github.com/cbeust/jcommander.git",
				URL:        "https://github.com/cbeust/jcommander",
			},
			IssueManagement: IssueConfig{System: "Github", URL: "https://github.com/cbeust/jcommander/issues"},
		},
		Artifacts: ArtifactsConfig{
			CompiledOutput: "build/libs/jcommander.jar",
			SourceTree:     "src/main/java",
			DocOutput:      "build/docs/javadoc",
			StagingDir:     DefaultStagingDir,
		},
		Inclusion: InclusionConfig{IncludeSources: true, IncludeJavadoc: true},
		Destinations: []DestinationConfig{
			{
				Name:            "sonatype",
				ReleaseURL:      "https://oss.sonatype.org/service/local/staging/deploy/maven2/",
				SnapshotURL:     "https://oss.sonatype.org/content/repositories/snapshots/",
				Publish:         true,
				RequiresSigning: true,
				CredentialKind:  CredentialBasic,
				CredentialKeys:  CredentialKeys{UsernameKey: "sonatypeUser", PasswordKey: "sonatypePassword"},
			},
			{
				Name:        "local",
				ReleaseURL:  "file://build/repo",
				SnapshotURL: "file://build/repo",
				Publish:     true,
				Optional:    true,
			},
		},
		PropertiesFiles: []string{"gradle.properties"},
		Checksums:       append([]ChecksumAlgorithm(nil), DefaultChecksums...),
		Execution: ExecutionConfig{
			Concurrency:       DefaultConcurrency,
			MaxRetries:        &retries,
			RetryBackoff:      RetryBackoffLinear,
			RetryInitialDelay: DefaultRetryInitialDelay,
			RetryMaxDelay:     DefaultRetryMaxDelay,
			UploadTimeout:     DefaultUploadTimeout,
			SigningTimeout:    DefaultSigningTimeout,
		},
		Ledger: LedgerConfig{Path: DefaultLedgerPath},
	}
}

// Init writes an example descriptor to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ConfigError(fmt.Sprintf("descriptor already exists: %s", configPath)).
			WithHint("use --force to overwrite").
			Build()
	}

	example := Example()
	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create descriptor directory").Build()
		}
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write descriptor").Build()
	}
	return nil
}

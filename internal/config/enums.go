package config

import (
	"fmt"
	"sort"
	"strings"
)

// enumSet normalizes case-insensitive user input into a typed enum value.
type enumSet[T ~string] struct {
	name   string
	values map[string]T
}

func newEnumSet[T ~string](name string, values ...T) enumSet[T] {
	m := make(map[string]T, len(values))
	for _, v := range values {
		m[strings.ToLower(string(v))] = v
	}
	return enumSet[T]{name: name, values: m}
}

// Normalize returns the typed value or "" when raw is not recognized.
func (e enumSet[T]) Normalize(raw string) T {
	return e.values[strings.ToLower(strings.TrimSpace(raw))]
}

// Check normalizes raw and reports an error listing valid options on failure.
func (e enumSet[T]) Check(raw string) (T, error) {
	if v := e.Normalize(raw); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q, valid options: %v", e.name, raw, e.keys())
}

func (e enumSet[T]) keys() []string {
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffModes = newEnumSet("retry_backoff", RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential)

// NormalizeRetryBackoff converts user input into a typed mode, returning "" for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode { return retryBackoffModes.Normalize(raw) }

// CredentialKind is the kind of secret a destination requires.
type CredentialKind string

const (
	CredentialNone  CredentialKind = "none"
	CredentialBasic CredentialKind = "basic"
	CredentialToken CredentialKind = "token"
)

var credentialKinds = newEnumSet("credential_kind", CredentialNone, CredentialBasic, CredentialToken)

// NormalizeCredentialKind converts user input into a typed kind, returning "" for unknown.
func NormalizeCredentialKind(raw string) CredentialKind { return credentialKinds.Normalize(raw) }

// ChecksumAlgorithm names a digest written next to every uploaded file.
type ChecksumAlgorithm string

const (
	ChecksumMD5    ChecksumAlgorithm = "md5"
	ChecksumSHA1   ChecksumAlgorithm = "sha1"
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
)

var checksumAlgorithms = newEnumSet("checksum", ChecksumMD5, ChecksumSHA1, ChecksumSHA256, ChecksumSHA512)

// NormalizeChecksum converts user input into a typed algorithm, returning "" for unknown.
func NormalizeChecksum(raw string) ChecksumAlgorithm { return checksumAlgorithms.Normalize(raw) }

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevels = newEnumSet("log level", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)

// NormalizeLogLevel converts user input into a level, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel {
	if l := logLevels.Normalize(raw); l != "" {
		return l
	}
	return LogLevelInfo
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormats = newEnumSet("log format", LogFormatJSON, LogFormatText)

// NormalizeLogFormat converts user input into a format, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat {
	if f := logFormats.Normalize(raw); f != "" {
		return f
	}
	return LogFormatText
}

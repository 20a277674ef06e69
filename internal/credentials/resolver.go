// Package credentials resolves per-destination secrets from an explicit,
// ordered chain of sources: project properties, then the process environment,
// then dotenv files.
package credentials

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"git.home.luguber.info/inful/relpub/internal/config"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/logfields"
)

// Kind is the kind of credential a consumer needs.
type Kind string

const (
	KindNone    Kind = "none"
	KindBasic   Kind = "basic"
	KindToken   Kind = "token"
	KindSigning Kind = "signing"
)

// KindFromConfig maps a descriptor credential kind.
func KindFromConfig(k config.CredentialKind) Kind {
	switch k {
	case config.CredentialBasic:
		return KindBasic
	case config.CredentialToken:
		return KindToken
	default:
		return KindNone
	}
}

// Request names what one destination needs.
type Request struct {
	Destination string
	Kind        Kind
	UsernameKey string
	PasswordKey string
}

// Set holds resolved secrets for one destination within one invocation.
// It is never persisted and redacts itself when printed or logged.
type Set struct {
	Kind        Kind
	Username    string
	Password    string // password for basic, token for token
	KeyMaterial []byte
	Passphrase  string
	// Origins maps each resolved key to the name of the source that supplied it.
	Origins map[string]string
}

// Token returns the bearer token for token credentials.
func (s Set) Token() string { return s.Password }

func (s Set) String() string {
	return fmt.Sprintf("credentials{kind=%s user=%s secret=%s}", s.Kind, s.Username, redact(s.Password != "" || len(s.KeyMaterial) > 0))
}

// GoString keeps %#v from leaking secrets.
func (s Set) GoString() string { return s.String() }

// LogValue implements slog.LogValuer.
func (s Set) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(s.Kind)),
		slog.String("username", s.Username),
		slog.String("secret", redact(s.Password != "" || len(s.KeyMaterial) > 0)),
	)
}

func redact(present bool) string {
	if present {
		return "[REDACTED]"
	}
	return ""
}

// Resolver looks keys up in its sources in order. It holds no cache; every
// Resolve call consults the sources again.
type Resolver struct {
	sources []Source
	logger  *slog.Logger
}

// NewResolver builds a resolver over sources in precedence order.
func NewResolver(logger *slog.Logger, sources ...Source) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sources: sources, logger: logger}
}

// Sources returns the source names in precedence order.
func (r *Resolver) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Lookup returns the first value for key and the name of the source that had it.
func (r *Resolver) Lookup(key string) (value, source string, ok bool) {
	for _, s := range r.sources {
		if v, found := s.Lookup(key); found {
			return v, s.Name(), true
		}
	}
	return "", "", false
}

// Resolve returns the credential set for one destination.
func (r *Resolver) Resolve(req Request) (Set, error) {
	set := Set{Kind: req.Kind, Origins: map[string]string{}}

	var fields []keyField
	switch req.Kind {
	case KindNone, "":
		set.Kind = KindNone
		return set, nil
	case KindBasic:
		fields = []keyField{{"username_key", req.UsernameKey}, {"password_key", req.PasswordKey}}
	case KindToken:
		fields = []keyField{{"password_key", req.PasswordKey}}
	default:
		return Set{}, ferrors.CredentialError(fmt.Sprintf("unsupported credential kind %q", req.Kind)).
			WithContext("destination", req.Destination).
			Build()
	}

	keys := make([]string, len(fields))
	for i, f := range fields {
		if f.key == "" {
			return Set{}, unconfiguredKey(req.Destination, req.Kind, "credential_keys."+f.field)
		}
		keys[i] = f.key
	}
	values, err := r.require(req.Destination, keys...)
	if err != nil {
		return Set{}, err
	}
	for k, v := range values {
		set.Origins[k] = v.source
	}
	if req.Kind == KindBasic {
		set.Username = values[req.UsernameKey].value
	}
	set.Password = values[req.PasswordKey].value
	return set, nil
}

// ResolveSigning loads the signing key. KeyFile wins over KeyKey; the
// passphrase is optional.
func (r *Resolver) ResolveSigning(cfg config.SigningConfig) (Set, error) {
	set := Set{Kind: KindSigning, Origins: map[string]string{}}
	if cfg.KeyFile != "" {
		data, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return Set{}, ferrors.WrapError(err, ferrors.CategoryCredential, "cannot read signing key file").
				WithContext("path", cfg.KeyFile).
				UserAction().
				WithHint("check signing.key_file").
				Build()
		}
		set.KeyMaterial = data
		set.Origins["key_file"] = cfg.KeyFile
	} else {
		if cfg.KeyKey == "" {
			return Set{}, unconfiguredKey("signing", KindSigning, "signing.key_key")
		}
		values, err := r.require("signing", cfg.KeyKey)
		if err != nil {
			return Set{}, err
		}
		// Keys passed through properties often have their newlines escaped.
		set.KeyMaterial = []byte(strings.ReplaceAll(values[cfg.KeyKey].value, `\n`, "\n"))
		set.Origins[cfg.KeyKey] = values[cfg.KeyKey].source
	}
	if cfg.PassphraseKey != "" {
		if v, src, ok := r.Lookup(cfg.PassphraseKey); ok {
			set.Passphrase = v
			set.Origins[cfg.PassphraseKey] = src
		}
	}
	return set, nil
}

// keyField pairs a configured key with the descriptor field it came from.
type keyField struct {
	field string
	key   string
}

func unconfiguredKey(destination string, kind Kind, field string) error {
	return ferrors.CredentialError(fmt.Sprintf("%s credentials for %s need %s", kind, destination, field)).
		WithContext("destination", destination).
		WithContext("field", field).
		UserAction().
		WithHint("set " + field + " in the descriptor").
		Build()
}

type found struct {
	value  string
	source string
}

func (r *Resolver) require(destination string, keys ...string) (map[string]found, error) {
	values := make(map[string]found, len(keys))
	var missing []string
	for _, key := range keys {
		v, src, ok := r.Lookup(key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		values[key] = found{value: v, source: src}
		r.logger.Debug("Resolved credential key",
			logfields.Destination(destination), logfields.Key(key), logfields.Source(src))
	}
	if len(missing) > 0 {
		return nil, missingError(destination, missing)
	}
	return values, nil
}

func missingError(destination string, missing []string) error {
	described := make([]string, len(missing))
	hints := make([]string, len(missing))
	envNames := make([]string, len(missing))
	for i, key := range missing {
		envNames[i] = EnvKey(key)
		described[i] = fmt.Sprintf("%s (env %s)", key, envNames[i])
		hints[i] = fmt.Sprintf("set property %s or env %s", key, envNames[i])
	}
	return ferrors.CredentialError(fmt.Sprintf("missing credentials for %s: %s", destination, strings.Join(described, ", "))).
		WithContext("destination", destination).
		WithContext("missing_keys", missing).
		WithContext("env_keys", envNames).
		WithHint(strings.Join(hints, "; ")).
		Build()
}

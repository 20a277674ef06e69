package credentials

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/joho/godotenv"
)

// Source is one named layer in the credential lookup chain.
type Source interface {
	Name() string
	Lookup(key string) (string, bool)
}

// PropertySource serves explicit project properties. It is the highest
// precedence layer.
type PropertySource struct {
	name   string
	values map[string]string
}

// NewPropertySource copies values into a read-only source.
func NewPropertySource(name string, values map[string]string) *PropertySource {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &PropertySource{name: name, values: copied}
}

// LoadProperties builds the property layer from properties files followed by
// explicit overrides (-P flags); overrides win. Missing files are skipped and
// reported in the returned list.
func LoadProperties(files []string, overrides map[string]string) (*PropertySource, []string, error) {
	values := make(map[string]string)
	var missing []string
	for _, file := range files {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			missing = append(missing, file)
			continue
		}
		parsed, err := godotenv.Read(file)
		if err != nil {
			return nil, nil, fmt.Errorf("read properties file %s: %w", file, err)
		}
		for k, v := range parsed {
			values[k] = v
		}
	}
	for k, v := range overrides {
		values[k] = v
	}
	return NewPropertySource("properties", values), missing, nil
}

// ParseAssignments turns -P key=value flags into a map.
func ParseAssignments(assignments []string) (map[string]string, error) {
	out := make(map[string]string, len(assignments))
	for _, a := range assignments {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid property %q, expected key=value", a)
		}
		out[k] = v
	}
	return out, nil
}

func (p *PropertySource) Name() string { return p.name }

func (p *PropertySource) Lookup(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok && v != ""
}

// EnvSource reads the process environment under the derived EnvKey name.
type EnvSource struct {
	lookup func(string) (string, bool)
}

// NewEnvSource returns a source backed by os.LookupEnv.
func NewEnvSource() *EnvSource { return &EnvSource{lookup: os.LookupEnv} }

// NewMapEnvSource returns an environment source backed by a fixed map.
func NewMapEnvSource(env map[string]string) *EnvSource {
	return &EnvSource{lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
}

func (e *EnvSource) Name() string { return "env" }

func (e *EnvSource) Lookup(key string) (string, bool) {
	v, ok := e.lookup(EnvKey(key))
	return v, ok && v != ""
}

// DotenvSource reads .env style files without touching the process
// environment. Later files override earlier ones.
type DotenvSource struct {
	values map[string]string
}

// DefaultDotenvFiles are consulted when the descriptor names none.
var DefaultDotenvFiles = []string{".env", ".env.local"}

// LoadDotenv parses the given files; missing files are ignored.
func LoadDotenv(files []string) (*DotenvSource, error) {
	values := make(map[string]string)
	for _, file := range files {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			continue
		}
		parsed, err := godotenv.Read(file)
		if err != nil {
			return nil, fmt.Errorf("read dotenv file %s: %w", file, err)
		}
		for k, v := range parsed {
			values[k] = v
		}
	}
	return &DotenvSource{values: values}, nil
}

func (d *DotenvSource) Name() string { return "dotenv" }

func (d *DotenvSource) Lookup(key string) (string, bool) {
	if v, ok := d.values[EnvKey(key)]; ok && v != "" {
		return v, true
	}
	v, ok := d.values[key]
	return v, ok && v != ""
}

// EnvKey derives the environment variable name for a property key:
// sonatypeUser becomes SONATYPE_USER, signing.key becomes SIGNING_KEY.
func EnvKey(key string) string {
	runes := []rune(key)
	var b strings.Builder
	lastUnderscore := true
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		if unicode.IsUpper(r) && i > 0 && !lastUnderscore {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
		lastUnderscore = false
	}
	return strings.TrimSuffix(b.String(), "_")
}

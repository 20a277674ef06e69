// Package transport moves files into Maven-layout repositories over HTTP(S),
// the local filesystem or S3.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// Repository is a Maven-layout store addressed by repository-relative paths
// such as com/beust/jcommander/1.79/jcommander-1.79.jar.
type Repository interface {
	// Exists reports whether a file is already present.
	Exists(ctx context.Context, path string) (bool, error)
	// Get returns a file's content; found is false when it does not exist.
	Get(ctx context.Context, path string) (data []byte, found bool, err error)
	// Put stores body under path, replacing any previous content.
	Put(ctx context.Context, path string, body io.Reader, size int64) error
	// Location renders path as an absolute URL for reports and logs.
	Location(path string) string
	Close() error
}

// Target is where a destination's repository lives.
type Target struct {
	Name     string
	URL      string
	Region   string // s3 only
	Endpoint string // s3 only
}

// Opener creates a repository for a target; tests substitute their own.
type Opener interface {
	Open(ctx context.Context, target Target, creds credentials.Set) (Repository, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, target Target, creds credentials.Set) (Repository, error)

func (f OpenerFunc) Open(ctx context.Context, target Target, creds credentials.Set) (Repository, error) {
	return f(ctx, target, creds)
}

// DefaultOpener dispatches on the URL scheme.
type DefaultOpener struct {
	HTTP *HTTPOptions
}

// Open implements Opener.
func (o DefaultOpener) Open(ctx context.Context, target Target, creds credentials.Set) (Repository, error) {
	u, err := url.Parse(target.URL)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid repository URL").
			WithContext("destination", target.Name).
			Build()
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		opts := HTTPOptions{}
		if o.HTTP != nil {
			opts = *o.HTTP
		}
		return NewHTTPRepository(u, creds, opts), nil
	case "file":
		return NewFileRepository(FilePath(u)), nil
	case "s3":
		repo, err := NewS3Repository(ctx, u, target, creds)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, ferrors.ConfigError(fmt.Sprintf("unsupported repository scheme %q", u.Scheme)).
			WithContext("destination", target.Name).
			Build()
	}
}

// joinURL appends a repository-relative path to a base URL path.
func joinURL(base *url.URL, p string) *url.URL {
	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(p, "/")
	u.RawPath = ""
	return &u
}

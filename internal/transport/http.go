package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/dnscache"

	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/version"
)

// HTTPOptions tunes the HTTP repository transport.
type HTTPOptions struct {
	Client    *http.Client
	UserAgent string
}

// HTTPRepository deploys with HTTP PUT as Maven repository managers expect.
type HTTPRepository struct {
	base      *url.URL
	client    *http.Client
	creds     credentials.Set
	userAgent string
}

var (
	sharedClientOnce sync.Once
	sharedClient     *http.Client
)

// cachingClient returns the process-wide client whose dialer resolves hosts
// through a DNS cache refreshed every five minutes.
func cachingClient() *http.Client {
	sharedClientOnce.Do(func() {
		resolver := &dnscache.Resolver{}
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				resolver.Refresh(true)
			}
		}()

		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		sharedClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					var lastErr error
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
						lastErr = err
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s: %w", host, lastErr)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	})
	return sharedClient
}

// NewHTTPRepository returns a repository rooted at base.
func NewHTTPRepository(base *url.URL, creds credentials.Set, opts HTTPOptions) *HTTPRepository {
	client := opts.Client
	if client == nil {
		client = cachingClient()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return &HTTPRepository{base: base, client: client, creds: creds, userAgent: ua}
}

func (r *HTTPRepository) Location(path string) string { return joinURL(r.base, path).String() }

func (r *HTTPRepository) Close() error { return nil }

func (r *HTTPRepository) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := r.do(ctx, http.MethodHead, path, nil, 0)
	if err != nil {
		return false, err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, statusError("check", r.Location(path), resp)
	}
}

func (r *HTTPRepository) Get(ctx context.Context, path string) ([]byte, bool, error) {
	resp, err := r.do(ctx, http.MethodGet, path, nil, 0)
	if err != nil {
		return nil, false, err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, ferrors.WrapError(err, ferrors.CategoryNetwork, "read response body").Retryable().Build()
		}
		return data, true, nil
	default:
		return nil, false, statusError("fetch", r.Location(path), resp)
	}
}

func (r *HTTPRepository) Put(ctx context.Context, path string, body io.Reader, size int64) error {
	resp, err := r.do(ctx, http.MethodPut, path, body, size)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusError("upload", r.Location(path), resp)
}

func (r *HTTPRepository) do(ctx context.Context, method, path string, body io.Reader, size int64) (*http.Response, error) {
	target := r.Location(path)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "creating request").Build()
	}
	if body != nil {
		req.ContentLength = size
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	req.Header.Set("User-Agent", r.userAgent)

	switch r.creds.Kind {
	case credentials.KindBasic:
		req.SetBasicAuth(r.creds.Username, r.creds.Password)
	case credentials.KindToken:
		req.Header.Set("Authorization", "Bearer "+r.creds.Token())
	}

	resp, err := r.client.Do(req)
	if err != nil {
		msg := fmt.Sprintf("%s %s failed", method, target)
		if errors.Is(err, context.Canceled) {
			return nil, ferrors.WrapError(err, ferrors.CategoryCanceled, msg).WithContext("url", target).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryUpload, msg).
			Retryable().
			WithContext("url", target).
			Build()
	}
	return resp, nil
}

// statusError maps a repository response onto a classified error. 401/403 and
// most 4xx need user action; 409 signals an existing release; 408, 429 and
// 5xx are transient.
func statusError(op, location string, resp *http.Response) error {
	msg := fmt.Sprintf("%s %s: %s", op, location, resp.Status)
	switch {
	case resp.StatusCode == http.StatusConflict:
		return ferrors.ConflictError(msg).
			WithContext("url", location).
			WithHint("the repository already holds this version; releases are immutable").
			Build()
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ferrors.UploadError(msg).
			UserAction().
			WithContext("url", location).
			WithContext("status", resp.StatusCode).
			WithHint("check the destination's credentials and deploy permissions").
			Build()
	case resp.StatusCode == http.StatusTooManyRequests:
		return ferrors.UploadError(msg).RateLimit().WithContext("status", resp.StatusCode).Build()
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return ferrors.UploadError(msg).WithContext("status", resp.StatusCode).Build()
	default:
		return ferrors.UploadError(msg).
			UserAction().
			WithContext("status", resp.StatusCode).
			WithHint("the repository rejected the request; check the destination URL").
			Build()
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

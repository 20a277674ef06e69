package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// s3API is the subset of the S3 client the repository uses.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Repository stores a Maven layout under s3://bucket/prefix.
type S3Repository struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Repository builds an S3 client for the target. Basic credentials are
// used as access key and secret; otherwise the default AWS chain applies.
func NewS3Repository(ctx context.Context, u *url.URL, target Target, creds credentials.Set) (*S3Repository, error) {
	if u.Host == "" {
		return nil, ferrors.ConfigError(fmt.Sprintf("s3 URL %q has no bucket", u.String())).
			WithContext("destination", target.Name).
			Build()
	}

	region := target.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds.Kind == credentials.KindBasic {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(creds.Username, creds.Password, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryCredential, "failed to load AWS configuration").
			UserAction().
			WithContext("destination", target.Name).
			Build()
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if target.Endpoint != "" {
			o.BaseEndpoint = aws.String(target.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Repository(client, u.Host, u.Path), nil
}

func newS3Repository(client s3API, bucket, prefix string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (r *S3Repository) key(p string) string {
	return path.Join(r.prefix, strings.TrimPrefix(p, "/"))
}

func (r *S3Repository) Location(p string) string {
	return "s3://" + r.bucket + "/" + r.key(p)
}

func (r *S3Repository) Close() error { return nil }

func (r *S3Repository) Exists(ctx context.Context, p string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(p)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, r.wrap("check", p, err)
}

func (r *S3Repository) Get(ctx context.Context, p string) ([]byte, bool, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, r.wrap("fetch", p, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, r.wrap("fetch", p, err)
	}
	return data, true, nil
}

func (r *S3Repository) Put(ctx context.Context, p string, body io.Reader, size int64) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(r.key(p)),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(p)),
	})
	if err != nil {
		return r.wrap("upload", p, err)
	}
	return nil
}

func (r *S3Repository) wrap(op, p string, err error) error {
	loc := r.Location(p)
	msg := fmt.Sprintf("%s %s", op, loc)
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "accessdenied") || strings.Contains(lower, "forbidden") {
		return ferrors.WrapError(err, ferrors.CategoryUpload, msg).
			UserAction().
			WithContext("url", loc).
			WithHint("check the destination's AWS credentials and bucket policy").
			Build()
	}
	return ferrors.WrapError(err, ferrors.CategoryUpload, msg).
		Retryable().
		WithContext("url", loc).
		Build()
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "NotFound") || strings.Contains(s, "NoSuchKey") || strings.Contains(s, "StatusCode: 404")
}

func contentType(p string) string {
	switch path.Ext(p) {
	case ".pom", ".xml":
		return "application/xml"
	case ".jar":
		return "application/java-archive"
	case ".asc":
		return "application/pgp-signature"
	default:
		return "text/plain"
	}
}

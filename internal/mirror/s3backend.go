package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Config describes an S3/R2-compatible bucket published as a
// mirror under an "s3://" server URL (e.g. "s3://my-bucket/lang_en/").
// Nothing picks S3Backend from the URL scheme on its own: the updater
// uses plain HTTP for every mirror unless a caller installs a resolver
// that returns an S3Backend (updater.SetBackendResolver).
type S3Config struct {
	Endpoint  string // empty for real AWS S3; set for R2/MinIO-style endpoints
	Region    string // "auto" for R2
	AccessKey string
	SecretKey string

	DownloadPartSize    int64
	DownloadConcurrency int
}

// S3Backend implements Backend by downloading objects from an
// S3-compatible bucket, generalizing the push/pull blob client this
// module's teacher used for project sync into a GET-only mirror.
type S3Backend struct {
	client *s3.Client
	dl     *manager.Downloader
	bucket string
	prefix string
}

// NewS3Backend constructs a backend for bucket, with keys resolved
// relative to prefix (which may be empty).
func NewS3Backend(ctx context.Context, cfg S3Config, bucket, prefix string) (*S3Backend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("mirror: s3 backend requires a bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	var optFns []func(*config.LoadOptions) error
	optFns = append(optFns, config.WithRegion(region))
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("mirror: load aws config: %w", err)
	}

	s3c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	partSize := cfg.DownloadPartSize
	if partSize <= 0 {
		partSize = 8 << 20
	}
	concurrency := cfg.DownloadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	dl := manager.NewDownloader(s3c, func(d *manager.Downloader) {
		d.PartSize = partSize
		d.Concurrency = concurrency
	})

	return &S3Backend{client: s3c, dl: dl, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Fetch implements Backend. url is expected to be an s3:// URL
// produced by JoinURL against an "s3://bucket/prefix/" mirror base;
// only the key portion after the bucket is used here since bucket and
// prefix are fixed at construction time.
func (b *S3Backend) Fetch(ctx context.Context, url string, progress func(done, total int64) bool) ([]byte, int64, error) {
	key := s3KeyFromURL(url, b.prefix)
	if b.prefix != "" {
		key = b.prefix + "/" + key
	}

	start := time.Now()
	buf := manager.NewWriteAtBuffer(nil)
	n, err := b.dl.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	pingMs := time.Since(start).Milliseconds()
	if err != nil {
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("mirror: s3 key not found: %s", key)
		}
		return nil, 0, fmt.Errorf("mirror: s3 download %s: %w", key, err)
	}
	if progress != nil {
		progress(n, n)
	}
	return buf.Bytes(), pingMs, nil
}

func s3KeyFromURL(url, prefix string) string {
	key := url
	if idx := strings.Index(key, "://"); idx >= 0 {
		rest := key[idx+3:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			key = rest[slash+1:]
		} else {
			key = ""
		}
	}
	if prefix != "" {
		key = strings.TrimPrefix(key, prefix+"/")
	}
	return key
}

func isNotFound(err error) bool {
	var api smithy.APIError
	if errors.As(err, &api) {
		if api.ErrorCode() == "NoSuchKey" {
			return true
		}
	}
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusNotFound {
		return true
	}
	return false
}

// Package modelsrc fetches model artifacts from http(s) URLs, s3://bucket/key
// locations, or local paths.
package modelsrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
)

// ErrEmptyArtifact is returned when a source resolves to zero bytes
var ErrEmptyArtifact = errors.New("empty model artifact")

// Config controls how remote sources are reached
type Config struct {
	Timeout     time.Duration
	S3Region    string
	S3Anonymous bool // public buckets; skips the credential chain
}

type s3Getter interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
}

// Fetcher resolves model sources to bytes. Safe for concurrent use.
type Fetcher struct {
	config Config
	client *http.Client
	log    logrus.FieldLogger

	s3Once sync.Once
	s3     s3Getter
	s3Err  error
}

// New creates a fetcher
func New(config Config, log logrus.FieldLogger) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.S3Region == "" {
		config.S3Region = "us-east-1"
	}
	return &Fetcher{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    log,
	}
}

// Fetch downloads or reads the artifact at src
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	start := time.Now()

	var (
		data []byte
		err  error
	)
	switch u, perr := url.Parse(src); {
	case perr == nil && (u.Scheme == "http" || u.Scheme == "https"):
		data, err = f.fetchHTTP(ctx, src)
	case perr == nil && u.Scheme == "s3":
		data, err = f.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case perr == nil && u.Scheme == "file":
		data, err = os.ReadFile(u.Path)
	default:
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyArtifact, src)
	}

	f.log.WithFields(logrus.Fields{
		"source":  src,
		"bytes":   len(data),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("model artifact fetched")

	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid model URL %s: %w", src, err)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to download model from %s: %w", src, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to download model from %s: status %s", src, res.Status)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}
	return data, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 location s3://%s/%s", bucket, key)
	}

	client, err := f.s3Client()
	if err != nil {
		return nil, err
	}

	out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read s3 object body: %w", err)
	}
	return data, nil
}

func (f *Fetcher) s3Client() (s3Getter, error) {
	f.s3Once.Do(func() {
		if f.s3 != nil {
			return
		}
		cfg := &aws.Config{
			Region:     aws.String(f.config.S3Region),
			HTTPClient: f.client,
		}
		if f.config.S3Anonymous {
			cfg.Credentials = credentials.AnonymousCredentials
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			f.s3Err = fmt.Errorf("failed to create AWS session: %w", err)
			return
		}
		f.s3 = s3.New(sess)
	})
	return f.s3, f.s3Err
}

// IsRemote reports whether src names an http(s) or s3 location
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "s3":
		return true
	}
	return false
}

// Package assets stores uploaded images in S3-compatible object storage and
// returns their public URLs.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofrs/uuid/v5"
)

// Kind is the folder an upload is stored under.
type Kind string

const (
	KindAvatar Kind = "avatars"
	KindCover  Kind = "covers"
)

// File is an upload taken from a request.
type File struct {
	Name        string // client file name, only the extension is kept
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader puts a file into the asset host and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, kind Kind, f File) (string, error)
}

// PutObjectAPI is the part of *s3.Client the uploader uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config describes the bucket and how objects are addressed publicly.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // empty for AWS, e.g. http://127.0.0.1:9000 for MinIO
	AccessKey string
	SecretKey string
	PublicURL string // prefix of returned URLs; defaults to Endpoint/Bucket
}

// ErrEmptyFile is returned when an upload carries no bytes.
var ErrEmptyFile = errors.New("empty file")

// S3 uploads to an S3 bucket.
type S3 struct {
	api    PutObjectAPI
	bucket string
	public string
	now    func() time.Time
}

// NewS3 builds an uploader over an existing client.
func NewS3(api PutObjectAPI, cfg Config) *S3 {
	return &S3{api: api, bucket: cfg.Bucket, public: publicBase(cfg), now: time.Now}
}

// publicBase is the URL prefix objects are served under. Without an explicit
// public URL or custom endpoint it is the virtual-hosted AWS bucket address.
func publicBase(cfg Config) string {
	switch {
	case cfg.PublicURL != "":
		return strings.TrimRight(cfg.PublicURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
}

// Dial loads AWS configuration with static credentials and returns an uploader.
func Dial(ctx context.Context, cfg Config) (*S3, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3(client, cfg), nil
}

// Upload stores f under a random key and returns its public URL.
func (u *S3) Upload(ctx context.Context, kind Kind, f File) (string, error) {
	if f.Body == nil || f.Size == 0 {
		return "", ErrEmptyFile
	}
	key := u.key(kind, f.Name)

	in := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f.Body,
	}
	if f.Size > 0 {
		in.ContentLength = aws.Int64(f.Size)
	}
	if f.ContentType != "" {
		in.ContentType = aws.String(f.ContentType)
	}
	if _, err := u.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return u.public + "/" + key, nil
}

func (u *S3) key(kind Kind, name string) string {
	d := u.now().UTC()
	ext := strings.ToLower(path.Ext(name))
	return fmt.Sprintf("%s/%d/%02d/%s%s", kind, d.Year(), d.Month(), uuid.Must(uuid.NewV4()), ext)
}

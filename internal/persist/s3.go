package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/pkg/models"
)

// S3Config configures an S3 or MinIO store.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
}

// S3Store keeps one JSON object per workspace at <prefix>/<name>.json.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 store. Path-style addressing is used so MinIO
// endpoints work unchanged.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	store := &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
	if err := store.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", logging.Err(err))
	}
	return store, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) (err error) {
	defer func(start time.Time) { observe("s3", "ensure_bucket", start, err) }(time.Now())
	_, err = s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if _, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", s.bucket, err)
	}
	logging.Info("created S3 bucket", logging.String("bucket", s.bucket))
	return nil
}

func (s *S3Store) key(workspace string) string {
	return path.Join(s.prefix, workspace+snapshotExt)
}

func (s *S3Store) Load(ctx context.Context, workspace string) (snap *models.Snapshot, err error) {
	defer func(start time.Time) { observe("s3", "load", start, err) }(time.Now())
	if err := ValidateWorkspaceName(workspace); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(workspace)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return emptySnapshot(workspace), nil
		}
		return nil, fmt.Errorf("s3 get %s: %w", workspace, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", workspace, err)
	}
	snap = &models.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode workspace %s: %w", workspace, err)
	}
	snap.Workspace = workspace
	return snap, nil
}

func (s *S3Store) Save(ctx context.Context, snap *models.Snapshot) (err error) {
	defer func(start time.Time) { observe("s3", "save", start, err) }(time.Now())
	if err := ValidateWorkspaceName(snap.Workspace); err != nil {
		return err
	}

	out := cloneSnapshot(snap)
	if out.SavedAt.IsZero() {
		out.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode workspace %s: %w", snap.Workspace, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(snap.Workspace)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", snap.Workspace, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, workspace string) (err error) {
	defer func(start time.Time) { observe("s3", "delete", start, err) }(time.Now())
	if err := ValidateWorkspaceName(workspace); err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(workspace)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", workspace, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { observe("s3", "list", start, err) }(time.Now())

	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.HasSuffix(name, snapshotExt) {
				names = append(names, strings.TrimSuffix(name, snapshotExt))
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3Store) Type() string { return "s3" }

func (s *S3Store) Close() error { return nil }

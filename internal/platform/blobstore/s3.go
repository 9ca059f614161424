package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Store archives exports as objects under exports/<clinic>/<id>. Export
// metadata travels as object user metadata.
type S3Store struct {
	bucket   string
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
}

// NewS3Store builds a store for bucket using the default credential chain.
func NewS3Store(region, bucket string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	client := s3.New(sess)
	return newS3Store(client, s3manager.NewUploaderWithClient(client), bucket), nil
}

func newS3Store(client s3iface.S3API, uploader s3manageriface.UploaderAPI, bucket string) *S3Store {
	return &S3Store{bucket: bucket, client: client, uploader: uploader}
}

func objectKey(clinic, id string) string {
	return "exports/" + clinic + "/" + id
}

const (
	metaKind      = "kind"
	metaFileName  = "filename"
	metaHash      = "hash"
	metaCreatedBy = "createdby"
	metaCreatedAt = "createdat"
)

func (s *S3Store) Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(meta.Clinic, meta.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(meta.ContentType),
		Metadata: map[string]*string{
			metaKind:      aws.String(meta.Kind),
			metaFileName:  aws.String(meta.FileName),
			metaHash:      aws.String(meta.Hash),
			metaCreatedBy: aws.String(meta.CreatedBy),
			metaCreatedAt: aws.String(strconv.FormatInt(meta.CreatedAt.Unix(), 10)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload export %s: %w", meta.ID, err)
	}
	out := meta
	return &out, nil
}

func (s *S3Store) Get(ctx context.Context, clinic, id string) (io.ReadCloser, *Metadata, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(clinic, id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("get export %s: %w", id, err)
	}
	meta := metadataFromObject(clinic, id, out.Metadata, out.ContentType, out.ContentLength, out.LastModified)
	return out.Body, meta, nil
}

func (s *S3Store) List(ctx context.Context, clinic, kind string, limit, offset int) ([]*Metadata, int, error) {
	prefix := "exports/" + clinic + "/"
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(p *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range p.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list exports: %w", err)
	}

	var matched []*Metadata
	for _, key := range keys {
		head, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, 0, fmt.Errorf("head export %s: %w", key, err)
		}
		meta := metadataFromObject(clinic, strings.TrimPrefix(key, prefix), head.Metadata, head.ContentType, head.ContentLength, head.LastModified)
		if kind != "" && meta.Kind != kind {
			continue
		}
		matched = append(matched, meta)
	}

	sortNewestFirst(matched)
	return page(matched, limit, offset), len(matched), nil
}

func metadataFromObject(clinic, id string, md map[string]*string, contentType *string, size *int64, modified *time.Time) *Metadata {
	meta := &Metadata{
		ID:          id,
		Clinic:      clinic,
		Kind:        lookup(md, metaKind),
		FileName:    lookup(md, metaFileName),
		Hash:        lookup(md, metaHash),
		CreatedBy:   lookup(md, metaCreatedBy),
		ContentType: aws.StringValue(contentType),
		Size:        aws.Int64Value(size),
	}
	if unix, err := strconv.ParseInt(lookup(md, metaCreatedAt), 10, 64); err == nil {
		meta.CreatedAt = time.Unix(unix, 0).UTC()
	} else if modified != nil {
		meta.CreatedAt = modified.UTC()
	}
	if meta.FileName == "" {
		meta.FileName = id
	}
	return meta
}

// lookup reads user metadata case-insensitively; S3 returns the keys in
// canonical header form.
func lookup(md map[string]*string, key string) string {
	for k, v := range md {
		if strings.EqualFold(k, key) {
			return aws.StringValue(v)
		}
	}
	return ""
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

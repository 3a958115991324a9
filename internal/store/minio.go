package store

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"
)

const keyPrefix = "content/"

// MinioStore keeps one object per record, keyed by content address.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the backing bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, record Record, body []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(record.ContentAddress),
		bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
			UserMetadata: recordMetadata(record),
			UserTags:     record.Tags,
			ContentType:  "application/octet-stream",
		})
	if err != nil {
		return fmt.Errorf("put record %s: %w", record.ContentAddress, err)
	}
	return nil
}

func (s *MinioStore) Lookup(ctx context.Context, contentAddress string) (Record, error) {
	info, err := s.client.StatObject(ctx, s.bucket, objectKey(contentAddress), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("stat record %s: %w", contentAddress, err)
	}
	record := recordFromMetadata(contentAddress, info.UserMetadata)
	if labels, err := s.client.GetObjectTagging(ctx, s.bucket, objectKey(contentAddress), minio.GetObjectTaggingOptions{}); err == nil {
		if m := labels.ToMap(); len(m) > 0 {
			record.Tags = m
		}
	}
	return record, nil
}

func (s *MinioStore) Delete(ctx context.Context, contentAddress string) error {
	if _, err := s.Lookup(ctx, contentAddress); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey(contentAddress), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete record %s: %w", contentAddress, err)
	}
	return nil
}

func (s *MinioStore) ListPendingByOwner(ctx context.Context, owner string) ([]Record, error) {
	var records []Record
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: keyPrefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list records: %w", info.Err)
		}
		record, err := s.Lookup(ctx, strings.TrimPrefix(info.Key, keyPrefix))
		if err != nil {
			if err == ErrRecordNotFound {
				continue
			}
			return nil, err
		}
		if record.Status == StatusPending && strings.EqualFold(record.Owner, owner) {
			records = append(records, record)
		}
	}
	return records, nil
}

// MarkOnchain rewrites the record metadata with status=onchain via a
// server-side copy; S3 metadata is immutable in place.
func (s *MinioStore) MarkOnchain(ctx context.Context, contentAddress string) error {
	record, err := s.Lookup(ctx, contentAddress)
	if err != nil {
		return err
	}
	record.Status = StatusOnchain
	return s.rewriteMetadata(ctx, record)
}

func (s *MinioStore) SetTags(ctx context.Context, contentAddress string, labels map[string]string) error {
	if _, err := s.Lookup(ctx, contentAddress); err != nil {
		return err
	}
	encoded, err := tags.NewTags(labels, true)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if err := s.client.PutObjectTagging(ctx, s.bucket, objectKey(contentAddress), encoded, minio.PutObjectTaggingOptions{}); err != nil {
		return fmt.Errorf("tag record %s: %w", contentAddress, err)
	}
	return nil
}

func (s *MinioStore) rewriteMetadata(ctx context.Context, record Record) error {
	key := objectKey(record.ContentAddress)
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          s.bucket,
			Object:          key,
			UserMetadata:    recordMetadata(record),
			ReplaceMetadata: true,
		},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		return fmt.Errorf("rewrite record %s: %w", record.ContentAddress, err)
	}
	return nil
}

func objectKey(contentAddress string) string {
	return keyPrefix + contentAddress
}

func recordMetadata(record Record) map[string]string {
	return map[string]string{
		"record-id": record.ID,
		"name":      record.Name,
		"group-id":  record.GroupID,
		"owner":     strings.ToLower(record.Owner),
		"status":    record.Status,
	}
}

func recordFromMetadata(contentAddress string, metadata map[string]string) Record {
	return Record{
		ID:             metaValue(metadata, "record-id"),
		ContentAddress: contentAddress,
		Name:           metaValue(metadata, "name"),
		GroupID:        metaValue(metadata, "group-id"),
		Owner:          strings.ToLower(metaValue(metadata, "owner")),
		Status:         metaValue(metadata, "status"),
	}
}

// metaValue is tolerant of the canonical header casing StatObject applies to
// user metadata keys.
func metaValue(metadata map[string]string, key string) string {
	for k, v := range metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func isNotFound(err error) bool {
	response := minio.ToErrorResponse(err)
	return response.StatusCode == 404 || response.Code == "NoSuchKey"
}

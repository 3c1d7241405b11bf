package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"

	"github.com/ivankudzin/tipjar/internal/storefront"
)

// S3Archive keeps raw signed receipts in object storage for audit. Failures
// here never fail a purchase; the service logs and moves on.
type S3Archive struct {
	client *minio.Client
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

func NewS3Archive(client *minio.Client, bucket string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: strings.TrimSpace(bucket),
	}
}

func (a *S3Archive) EnsureBucket(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if a.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	a.ensureOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.ensureErr = err
			return
		}
		if exists {
			return
		}
		a.ensureErr = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	})

	if a.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", a.bucket, a.ensureErr)
	}

	return nil
}

func (a *S3Archive) Put(ctx context.Context, txID string, token storefront.Token) error {
	if a.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if strings.TrimSpace(txID) == "" || token == "" {
		return ErrValidation
	}
	if err := a.EnsureBucket(ctx); err != nil {
		return err
	}

	key := "receipts/" + txID + ".jwt"
	body := strings.NewReader(string(token))
	_, err := a.client.PutObject(ctx, a.bucket, key, body, int64(len(token)), minio.PutObjectOptions{
		ContentType: "application/jwt",
	})
	if err != nil {
		return fmt.Errorf("put receipt to s3: %w", err)
	}

	return nil
}

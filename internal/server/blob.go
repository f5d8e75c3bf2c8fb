// blob.go - Storage backend adapter over an S3-compatible object store.
//
// The application tier never carries file bytes: uploads and downloads go
// through presigned URLs and everything here is metadata-only.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// presignTTL is how long issued upload/download URLs stay valid.
const presignTTL = time.Hour

// BlobStore is the object-storage surface the drop engine consumes.
// Implementations must be safe for concurrent use; Delete must swallow
// backend failures and treat already-gone objects as success.
type BlobStore interface {
	ObjectKey(ns Namespace, key string) string
	PresignedPut(ctx context.Context, ns Namespace, key, contentType string, size int64, ttl time.Duration) (string, error)
	PresignedGet(ctx context.Context, ns Namespace, key, filename string, ttl time.Duration, explicitObjectID string) (string, error)
	Exists(ctx context.Context, ns Namespace, key string) (bool, error)
	SizeOf(ctx context.Context, ns Namespace, key string) (int64, error)
	Copy(ctx context.Context, srcObjectID string, ns Namespace, key string) (string, error)
	Delete(ctx context.Context, ns Namespace, key, explicitObjectID string)
}

type minioBlobs struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobs connects to the object store and verifies the bucket
// exists before handing back the adapter.
func NewMinioBlobs(rawEndpoint, accessKey, secretKey, bucket string) (BlobStore, error) {
	if rawEndpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("object storage configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(context.Background(), bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket does not exist: %s", bucket)
	}

	return &minioBlobs{client: client, bucket: bucket}, nil
}

// normaliseEndpoint accepts either "minio:9000" or a full URL and returns
// the host plus whether TLS should be used.
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme: treat as host:port, insecure (local object store).
	return raw, false, nil
}

// ObjectKey maps a drop (ns, key) to its object path. Single source of
// truth so a path mismatch between operations is structurally impossible.
func (b *minioBlobs) ObjectKey(ns Namespace, key string) string {
	return fmt.Sprintf("drops/%s/%s", ns, key)
}

// resolveObjectID prefers an explicit object id when one is stored on the
// drop. Drops created before the current path convention keep working
// through this escape hatch.
func (b *minioBlobs) resolveObjectID(ns Namespace, key, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return b.ObjectKey(ns, key)
}

// PresignedPut issues a direct-upload URL. The declared size and content
// type are bound into the signature, so the backend rejects a body that
// does not match.
func (b *minioBlobs) PresignedPut(ctx context.Context, ns Namespace, key, contentType string, size int64, ttl time.Duration) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr := http.Header{}
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Length", strconv.FormatInt(size, 10))

	u, err := b.client.PresignHeader(ctx, http.MethodPut, b.bucket, b.ObjectKey(ns, key), ttl, url.Values{}, hdr)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// PresignedGet issues a direct-download URL, optionally forcing a
// content-disposition filename so browsers suggest the original name.
func (b *minioBlobs) PresignedGet(ctx context.Context, ns Namespace, key, filename string, ttl time.Duration, explicitObjectID string) (string, error) {
	params := url.Values{}
	if filename != "" {
		safe := strings.ReplaceAll(filename, `"`, "")
		params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, safe))
	}

	u, err := b.client.PresignedGetObject(ctx, b.bucket, b.resolveObjectID(ns, key, explicitObjectID), ttl, params)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// statNotFound reports whether err is the backend's "no such object".
func statNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// Exists probes object metadata without fetching the body.
func (b *minioBlobs) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, b.ObjectKey(ns, key), minio.StatObjectOptions{})
	if err != nil {
		if statNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SizeOf returns the backend-reported object size. This is the only size
// the quota ledger ever trusts.
func (b *minioBlobs) SizeOf(ctx context.Context, ns Namespace, key string) (int64, error) {
	info, err := b.client.StatObject(ctx, b.bucket, b.ObjectKey(ns, key), minio.StatObjectOptions{})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Copy duplicates an object server-side and returns the new object id.
func (b *minioBlobs) Copy(ctx context.Context, srcObjectID string, ns Namespace, key string) (string, error) {
	dst := b.ObjectKey(ns, key)
	_, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: b.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: b.bucket, Object: srcObjectID},
	)
	if err != nil {
		return "", err
	}
	return dst, nil
}

// Delete removes the backing object. Already-gone is success; any other
// backend failure is logged and swallowed so the caller's record deletion
// always proceeds. A transient outage here costs at worst an orphaned
// object, never a stuck user-visible delete.
func (b *minioBlobs) Delete(ctx context.Context, ns Namespace, key, explicitObjectID string) {
	objectID := b.resolveObjectID(ns, key, explicitObjectID)
	err := b.client.RemoveObject(ctx, b.bucket, objectID, minio.RemoveObjectOptions{})
	if err != nil && !statNotFound(err) {
		log.Printf("service=blobs msg=%q object=%s err=%v", "delete_failed", objectID, err)
	}
}

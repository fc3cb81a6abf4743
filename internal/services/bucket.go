package services

import (
  "context"
  "errors"
  "fmt"
  "io"
  "net/url"
  "strings"
  "time"

  "cloud.google.com/go/storage"
  "google.golang.org/api/iterator"
  "google.golang.org/api/option"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/logger"
)

// ObjectInfo is what the store knows about a blob without reading it.
type ObjectInfo struct {
  Key                 string
  ContentType         string
  Size                int64
  Updated             time.Time
  Metadata            map[string]string
}

type BucketService interface {
  EnsureBucket(ctx context.Context) error
  Upload(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) error
  Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
  Exists(ctx context.Context, key string) (bool, error)
  Delete(ctx context.Context, key string) error
  List(ctx context.Context, prefix string) ([]ObjectInfo, error)
  PublicURL(key string) string
  Close() error
}

type BucketConfig struct {
  Bucket              string
  ProjectID           string
  CredentialsFile     string
  // ClientOptions are appended after the credentials option.
  ClientOptions       []option.ClientOption
}

type gcsBucketService struct {
  log               *logger.Logger
  client            *storage.Client
  bucketName        string
  projectID         string
}

func NewBucketService(ctx context.Context, log *logger.Logger, cfg BucketConfig) (BucketService, error) {
  serviceLog := log.With("service", "BucketService")
  if cfg.Bucket == "" {
    return nil, fmt.Errorf("missing GCS_BUCKET environment variable")
  }
  var opts []option.ClientOption
  if cfg.CredentialsFile != "" {
    opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
  }
  opts = append(opts, cfg.ClientOptions...)
  client, err := storage.NewClient(ctx, opts...)
  if err != nil {
    serviceLog.Warn("Failed to create storage client", "error", err)
    return nil, fmt.Errorf("failed to create storage client: %w", err)
  }
  return &gcsBucketService{
    log:        serviceLog,
    client:     client,
    bucketName: cfg.Bucket,
    projectID:  cfg.ProjectID,
  }, nil
}

func (bs *gcsBucketService) bucket() *storage.BucketHandle {
  return bs.client.Bucket(bs.bucketName)
}

func (bs *gcsBucketService) EnsureBucket(ctx context.Context) error {
  _, err := bs.bucket().Attrs(ctx)
  if err == nil {
    return nil
  }
  if !errors.Is(err, storage.ErrBucketNotExist) {
    bs.log.Warn("Failed to read bucket attrs", "bucket", bs.bucketName, "error", err)
    return err
  }
  if bs.projectID == "" {
    return fmt.Errorf("bucket %s does not exist and no project id is configured", bs.bucketName)
  }
  bs.log.Info("Creating bucket", "bucket", bs.bucketName)
  if err := bs.bucket().Create(ctx, bs.projectID, nil); err != nil {
    bs.log.Warn("Failed to create bucket", "bucket", bs.bucketName, "error", err)
    return err
  }
  return nil
}

// Upload overwrites whatever is stored under key.
func (bs *gcsBucketService) Upload(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) error {
  ctx, cancel := context.WithCancel(ctx)
  defer cancel()

  w := bs.bucket().Object(key).NewWriter(ctx)
  w.ContentType = contentType
  w.Metadata = metadata
  if _, err := io.Copy(w, r); err != nil {
    // cancelling the context aborts the upload
    cancel()
    _ = w.Close()
    bs.log.Warn("Failed to stream upload", "key", key, "error", err)
    return fmt.Errorf("failed to upload %s: %w", key, err)
  }
  if err := w.Close(); err != nil {
    bs.log.Warn("Failed to finalize upload", "key", key, "error", err)
    return fmt.Errorf("failed to upload %s: %w", key, err)
  }
  bs.log.Debug("Uploaded object", "key", key, "contentType", contentType)
  return nil
}

func (bs *gcsBucketService) Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
  obj := bs.bucket().Object(key)
  attrs, err := obj.Attrs(ctx)
  if err != nil {
    if errors.Is(err, storage.ErrObjectNotExist) {
      return nil, nil, apperror.NotFound("file %s not found", key)
    }
    bs.log.Warn("Failed to read object attrs", "key", key, "error", err)
    return nil, nil, err
  }
  rc, err := obj.NewReader(ctx)
  if err != nil {
    if errors.Is(err, storage.ErrObjectNotExist) {
      return nil, nil, apperror.NotFound("file %s not found", key)
    }
    bs.log.Warn("Failed to open object reader", "key", key, "error", err)
    return nil, nil, err
  }
  info := objectInfoFromAttrs(attrs)
  return rc, &info, nil
}

func (bs *gcsBucketService) Exists(ctx context.Context, key string) (bool, error) {
  _, err := bs.bucket().Object(key).Attrs(ctx)
  if err == nil {
    return true, nil
  }
  if errors.Is(err, storage.ErrObjectNotExist) {
    return false, nil
  }
  bs.log.Warn("Failed existence check", "key", key, "error", err)
  return false, err
}

func (bs *gcsBucketService) Delete(ctx context.Context, key string) error {
  if err := bs.bucket().Object(key).Delete(ctx); err != nil {
    if errors.Is(err, storage.ErrObjectNotExist) {
      return apperror.NotFound("file %s not found", key)
    }
    bs.log.Warn("Failed to delete object", "key", key, "error", err)
    return err
  }
  return nil
}

func (bs *gcsBucketService) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
  it := bs.bucket().Objects(ctx, &storage.Query{Prefix: prefix})
  var out []ObjectInfo
  for {
    attrs, err := it.Next()
    if err == iterator.Done {
      break
    }
    if err != nil {
      bs.log.Warn("Failed to list objects", "prefix", prefix, "error", err)
      return nil, err
    }
    out = append(out, objectInfoFromAttrs(attrs))
  }
  return out, nil
}

func (bs *gcsBucketService) PublicURL(key string) string {
  segments := strings.Split(key, "/")
  for i, s := range segments {
    segments[i] = url.PathEscape(s)
  }
  return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, strings.Join(segments, "/"))
}

func (bs *gcsBucketService) Close() error {
  return bs.client.Close()
}

func objectInfoFromAttrs(attrs *storage.ObjectAttrs) ObjectInfo {
  return ObjectInfo{
    Key:         attrs.Name,
    ContentType: attrs.ContentType,
    Size:        attrs.Size,
    Updated:     attrs.Updated,
    Metadata:    attrs.Metadata,
  }
}

package services

import (
  "context"
  "testing"
  "time"

  "cloud.google.com/go/storage"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
  "google.golang.org/api/option"

  "github.com/kaar-org/kaar-backend/internal/logger"
)

func TestNewBucketServiceRequiresBucket(t *testing.T) {
  _, err := NewBucketService(context.Background(), logger.NewNop(), BucketConfig{})
  assert.Error(t, err)
}

func TestPublicURLEscapesSegments(t *testing.T) {
  bs, err := NewBucketService(context.Background(), logger.NewNop(), BucketConfig{
    Bucket:        "kaar-docs",
    ClientOptions: []option.ClientOption{option.WithoutAuthentication()},
  })
  require.NoError(t, err)
  t.Cleanup(func() { _ = bs.Close() })

  assert.Equal(t,
    "https://storage.googleapis.com/kaar-docs/a_at_b_dot_c_alice/my%20report.pdf",
    bs.PublicURL("a_at_b_dot_c_alice/my report.pdf"),
  )
}

func TestObjectInfoFromAttrs(t *testing.T) {
  now := time.Now()
  info := objectInfoFromAttrs(&storage.ObjectAttrs{
    Name:        "folder/x.pdf",
    ContentType: "application/pdf",
    Size:        2048,
    Updated:     now,
    Metadata:    map[string]string{"originalName": "x.pdf"},
  })
  assert.Equal(t, "folder/x.pdf", info.Key)
  assert.Equal(t, int64(2048), info.Size)
  assert.Equal(t, now, info.Updated)
  assert.Equal(t, "x.pdf", info.Metadata["originalName"])
}

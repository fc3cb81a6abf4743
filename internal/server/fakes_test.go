package server

import (
  "bytes"
  "context"
  "io"
  "sort"
  "strings"
  "sync"
  "time"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/services"
  "github.com/kaar-org/kaar-backend/internal/types"
)

type memBucket struct {
  mu        sync.Mutex
  data      map[string][]byte
  info      map[string]services.ObjectInfo
}

func newMemBucket() *memBucket {
  return &memBucket{data: map[string][]byte{}, info: map[string]services.ObjectInfo{}}
}

func (mb *memBucket) EnsureBucket(ctx context.Context) error { return nil }

func (mb *memBucket) Upload(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) error {
  b, err := io.ReadAll(r)
  if err != nil {
    return err
  }
  mb.mu.Lock()
  defer mb.mu.Unlock()
  mb.data[key] = b
  mb.info[key] = services.ObjectInfo{Key: key, ContentType: contentType, Size: int64(len(b)), Updated: time.Now(), Metadata: metadata}
  return nil
}

func (mb *memBucket) Download(ctx context.Context, key string) (io.ReadCloser, *services.ObjectInfo, error) {
  mb.mu.Lock()
  defer mb.mu.Unlock()
  b, ok := mb.data[key]
  if !ok {
    return nil, nil, apperror.NotFound("file %s not found", key)
  }
  info := mb.info[key]
  return io.NopCloser(bytes.NewReader(b)), &info, nil
}

func (mb *memBucket) Exists(ctx context.Context, key string) (bool, error) {
  mb.mu.Lock()
  defer mb.mu.Unlock()
  _, ok := mb.data[key]
  return ok, nil
}

func (mb *memBucket) Delete(ctx context.Context, key string) error {
  mb.mu.Lock()
  defer mb.mu.Unlock()
  if _, ok := mb.data[key]; !ok {
    return apperror.NotFound("file %s not found", key)
  }
  delete(mb.data, key)
  delete(mb.info, key)
  return nil
}

func (mb *memBucket) List(ctx context.Context, prefix string) ([]services.ObjectInfo, error) {
  mb.mu.Lock()
  defer mb.mu.Unlock()
  var out []services.ObjectInfo
  for k, info := range mb.info {
    if strings.HasPrefix(k, prefix) {
      out = append(out, info)
    }
  }
  sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
  return out, nil
}

func (mb *memBucket) PublicURL(key string) string { return "https://blobs.test/" + key }

func (mb *memBucket) Close() error { return nil }

type scriptedInference struct{}

func (scriptedInference) AddSource(ctx context.Context, file io.Reader, fileName string) (string, error) {
  return "src_" + fileName, nil
}

func (scriptedInference) Ask(ctx context.Context, sourceID, question string, withReferences bool) (*types.Answer, error) {
  return &types.Answer{Text: "You asked: " + question, References: []types.Reference{{Page: 1}}}, nil
}

func (s scriptedInference) AskConversation(ctx context.Context, sourceID string, messages []types.ConversationMessage, withReferences bool) (*types.Answer, error) {
  return s.Ask(ctx, sourceID, messages[len(messages)-1].Content, withReferences)
}

func (scriptedInference) DeleteSources(ctx context.Context, sourceIDs ...string) error { return nil }

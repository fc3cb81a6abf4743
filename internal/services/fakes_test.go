package services

import (
  "bytes"
  "context"
  "errors"
  "io"
  "sort"
  "strings"
  "sync"
  "time"

  "github.com/kaar-org/kaar-backend/internal/apperror"
  "github.com/kaar-org/kaar-backend/internal/types"
)

type fakeObject struct {
  data        []byte
  info        ObjectInfo
}

type fakeBucket struct {
  mu          sync.Mutex
  objects     map[string]fakeObject
  uploadErr   error
}

func newFakeBucket() *fakeBucket {
  return &fakeBucket{objects: map[string]fakeObject{}}
}

func (fb *fakeBucket) EnsureBucket(ctx context.Context) error { return nil }

func (fb *fakeBucket) Upload(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) error {
  if fb.uploadErr != nil {
    return fb.uploadErr
  }
  data, err := io.ReadAll(r)
  if err != nil {
    return err
  }
  fb.mu.Lock()
  defer fb.mu.Unlock()
  fb.objects[key] = fakeObject{data: data, info: ObjectInfo{
    Key:         key,
    ContentType: contentType,
    Size:        int64(len(data)),
    Updated:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
    Metadata:    metadata,
  }}
  return nil
}

func (fb *fakeBucket) Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
  fb.mu.Lock()
  defer fb.mu.Unlock()
  obj, ok := fb.objects[key]
  if !ok {
    return nil, nil, apperror.NotFound("file %s not found", key)
  }
  info := obj.info
  return io.NopCloser(bytes.NewReader(obj.data)), &info, nil
}

func (fb *fakeBucket) Exists(ctx context.Context, key string) (bool, error) {
  fb.mu.Lock()
  defer fb.mu.Unlock()
  _, ok := fb.objects[key]
  return ok, nil
}

func (fb *fakeBucket) Delete(ctx context.Context, key string) error {
  fb.mu.Lock()
  defer fb.mu.Unlock()
  if _, ok := fb.objects[key]; !ok {
    return apperror.NotFound("file %s not found", key)
  }
  delete(fb.objects, key)
  return nil
}

func (fb *fakeBucket) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
  fb.mu.Lock()
  defer fb.mu.Unlock()
  var out []ObjectInfo
  for k, obj := range fb.objects {
    if strings.HasPrefix(k, prefix) {
      out = append(out, obj.info)
    }
  }
  sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
  return out, nil
}

func (fb *fakeBucket) PublicURL(key string) string {
  return "https://blobs.test/" + key
}

func (fb *fakeBucket) Close() error { return nil }

type fakeInference struct {
  mu              sync.Mutex
  answer          *types.Answer
  err             error
  asked           []string
  conversations   [][]types.ConversationMessage
  added           []string
  deleted         []string
}

func (fi *fakeInference) AddSource(ctx context.Context, file io.Reader, fileName string) (string, error) {
  fi.mu.Lock()
  defer fi.mu.Unlock()
  if fi.err != nil {
    return "", fi.err
  }
  fi.added = append(fi.added, fileName)
  return "src_" + fileName, nil
}

func (fi *fakeInference) Ask(ctx context.Context, sourceID, question string, withReferences bool) (*types.Answer, error) {
  fi.mu.Lock()
  defer fi.mu.Unlock()
  fi.asked = append(fi.asked, sourceID+":"+question)
  if fi.err != nil {
    return nil, fi.err
  }
  if fi.answer == nil {
    return &types.Answer{Text: "answer to " + question, References: []types.Reference{}}, nil
  }
  return fi.answer, nil
}

func (fi *fakeInference) AskConversation(ctx context.Context, sourceID string, messages []types.ConversationMessage, withReferences bool) (*types.Answer, error) {
  fi.mu.Lock()
  fi.conversations = append(fi.conversations, messages)
  fi.mu.Unlock()
  return fi.Ask(ctx, sourceID, messages[len(messages)-1].Content, withReferences)
}

func (fi *fakeInference) DeleteSources(ctx context.Context, sourceIDs ...string) error {
  fi.mu.Lock()
  defer fi.mu.Unlock()
  if fi.err != nil {
    return fi.err
  }
  fi.deleted = append(fi.deleted, sourceIDs...)
  return nil
}

var errUpstream = errors.New("upstream down")

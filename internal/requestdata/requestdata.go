package requestdata

import (
  "context"
  "time"
)

type key struct{}

var requestDataKey key

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
  return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
  val := ctx.Value(requestDataKey)
  if rd, ok := val.(*RequestData); ok {
    return rd
  }
  return nil
}

// RequestData is the caller identity, taken only from verified token claims.
type RequestData struct {
  TokenString     string
  Username        string
  Email           string
  ExpiresAt       time.Time
}

package types

import (
  "time"
)

// UserFileInfo is derived from object store metadata on every read.
type UserFileInfo struct {
  FileName            string                    `json:"fileName"`
  DisplayName         string                    `json:"displayName"`
  BlobURL             string                    `json:"blobUrl,omitempty"`
  LastModified        time.Time                 `json:"lastModified"`
  Size                string                    `json:"size"`
  ContentType         string                    `json:"contentType"`
}

package normalization

import (
  "strings"
)

// ParseInputString trims and lower-cases free-form input (emails, enum-like values).
func ParseInputString(s string) string {
  return strings.ToLower(strings.TrimSpace(s))
}

func ParseInputStringPtr(s *string) *string {
  if s == nil {
    return nil
  }
  v := ParseInputString(*s)
  return &v
}

// TrimInput only trims; used for values where case matters (usernames, passwords, file names).
func TrimInput(s string) string {
  return strings.TrimSpace(s)
}

var emailReplacer = strings.NewReplacer("@", "_at_", ".", "_dot_")

// SanitizeEmail folds an email into a storage-safe token: lower-cased, '@' -> "_at_",
// '.' -> "_dot_". Applying it to its own output is a no-op.
func SanitizeEmail(email string) string {
  return emailReplacer.Replace(ParseInputString(email))
}

// UserFolder is the per-user prefix in the object store: sanitize(email)_username.
func UserFolder(email, username string) string {
  return SanitizeEmail(email) + "_" + TrimInput(username)
}

// BlobPath joins the user's folder and a file name.
func BlobPath(email, username, fileName string) string {
  return UserFolder(email, username) + "/" + fileName
}

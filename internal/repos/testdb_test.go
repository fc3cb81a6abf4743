package repos

import (
    "fmt"
    "strings"
    "testing"

    "github.com/stretchr/testify/require"
    "gorm.io/driver/sqlite"
    "gorm.io/gorm"

    "github.com/kaar-org/kaar-backend/internal/db"
)

func newTestDB(t *testing.T) *gorm.DB {
    t.Helper()
    name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
    gdb, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
    require.NoError(t, err)
    require.NoError(t, db.AutoMigrate(gdb))
    t.Cleanup(func() {
        if sqlDB, err := gdb.DB(); err == nil {
            _ = sqlDB.Close()
        }
    })
    return gdb
}

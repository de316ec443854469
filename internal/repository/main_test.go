package repository

import (
	"testing"
	"time"

	"feedline/internal/database"
	"feedline/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func seedUser(t *testing.T, db *gorm.DB, email, name string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Password: "hash", Name: name, Status: models.DefaultUserStatus}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedPost(t *testing.T, db *gorm.DB, creator uint, title string, createdAt time.Time) *models.Post {
	t.Helper()
	p := &models.Post{Title: title, Content: "content", ImageURL: "images/" + title + ".png", CreatorID: creator, CreatedAt: createdAt}
	require.NoError(t, db.Omit("Creator").Create(p).Error)
	return p
}

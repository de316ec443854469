package database

import (
	"context"
	"testing"
	"testing/fstest"

	"feedline/internal/config"
	"feedline/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestDialector(t *testing.T) {
	d, err := Dialector(&config.Config{StoreDriver: config.StoreDriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = Dialector(&config.Config{StoreDriver: config.StoreDriverPostgres, DBHost: "db", DBPort: "5432"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = Dialector(&config.Config{StoreDriver: config.StoreDriverMongo})
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := LoadMigrations(migrationFS, "migrations")
	require.NoError(t, err)
	require.Len(t, migs, 3)
	assert.Equal(t, "create_users", migs[0].Name)
	assert.Equal(t, "create_user_posts", migs[2].Name)
	for _, m := range migs {
		assert.NotEmpty(t, m.UpScript, m.String())
		assert.NotEmpty(t, m.DownScript, m.String())
	}
}

func TestLoadMigrations_RejectsDuplicates(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"m/000001_a.down.sql": {Data: []byte("SELECT 1;")},
		"m/000001_b.up.sql":   {Data: []byte("SELECT 1;")},
		"m/000001_b.down.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := LoadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestMigrator_UpAndRollback(t *testing.T) {
	db := openSQLite(t)
	fsys := fstest.MapFS{
		"m/000001_widgets.up.sql":    {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
		"m/000001_widgets.down.sql":  {Data: []byte("DROP TABLE widgets;")},
		"m/000002_gadgets.up.sql":    {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
		"m/000002_gadgets.down.sql":  {Data: []byte("DROP TABLE gadgets;")},
		"m/not_a_migration.up.sql":   {Data: []byte("SELECT 1;")},
		"m/not_a_migration.down.sql": {Data: []byte("SELECT 1;")},
	}
	m, err := NewMigratorFrom(db, fsys, "m")
	require.NoError(t, err)
	require.Len(t, m.Migrations(), 2)

	ctx := context.Background()
	require.NoError(t, m.Up(ctx))
	assert.True(t, db.Migrator().HasTable("widgets"))
	assert.True(t, db.Migrator().HasTable("gadgets"))

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	// Idempotent.
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Rollback(ctx, 2))
	assert.False(t, db.Migrator().HasTable("gadgets"))
	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)

	assert.Error(t, m.Rollback(ctx, 2))
	assert.Error(t, m.Rollback(ctx, 99))
}

func TestMigrator_UnknownAppliedVersion(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.AutoMigrate(&MigrationLog{}))
	require.NoError(t, db.Create(&MigrationLog{Version: 42, Name: "ghost"}).Error)

	m, err := NewMigratorFrom(db, fstest.MapFS{
		"m/000001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"m/000001_a.down.sql": {Data: []byte("SELECT 1;")},
	}, "m")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Up(context.Background()), errUnknownVersions)
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		sql     bool
		auto    bool
		wantErr bool
	}{
		{"hybrid dev", config.Config{Env: "development"}, true, true, false},
		{"hybrid prod", config.Config{Env: "production"}, true, false, false},
		{"sql", config.Config{DBSchemaMode: SchemaModeSQL}, true, false, false},
		{"auto prod refused", config.Config{Env: "production", DBSchemaMode: SchemaModeAuto}, false, false, true},
		{"auto prod allowed", config.Config{Env: "production", DBSchemaMode: SchemaModeAuto, DBAutoMigrateDestructive: true}, false, true, false},
		{"sqlite always auto", config.Config{Env: "production", StoreDriver: config.StoreDriverSQLite, DBSchemaMode: SchemaModeSQL}, false, true, false},
		{"unknown", config.Config{DBSchemaMode: "yolo"}, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, auto, err := schemaPolicy(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.auto, auto)
		})
	}
}

func TestApplySchema_SQLite(t *testing.T) {
	db := openSQLite(t)
	cfg := &config.Config{StoreDriver: config.StoreDriverSQLite}
	require.NoError(t, ApplySchema(context.Background(), db, cfg))

	for _, model := range PersistentModels() {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.True(t, db.Migrator().HasTable("user_posts"))

	status, err := GetSchemaStatus(context.Background(), db, cfg)
	require.NoError(t, err)
	assert.Equal(t, SchemaModeAuto, status.Mode)
	assert.False(t, status.WillRunSQL)
}

func TestPersistentModels_IncludesPost(t *testing.T) {
	found := false
	for _, model := range PersistentModels() {
		if _, ok := model.(*models.Post); ok {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMigrator_AppliedOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT count\(\*\) FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT "version" FROM "migration_logs" ORDER BY version ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))

	m, err := NewMigrator(db)
	require.NoError(t, err)
	applied, err := m.Applied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

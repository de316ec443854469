package artifact_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"feedline/internal/artifact"
	"feedline/internal/models"
	"feedline/internal/testutil"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "images/a.png", want: "images/a.png"},
		{in: "/images/a.png", want: "images/a.png"},
		{in: "images\\a.png", want: "images/a.png"},
		{in: "images/../secret", wantErr: true},
		{in: "etc/passwd", wantErr: true},
		{in: "images/", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := artifact.NormalizeKey(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, artifact.ErrInvalidKey, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewKey(t *testing.T) {
	key := artifact.NewKey("../../My Holiday Photo!.PNG", ".png")
	assert.True(t, strings.HasPrefix(key, artifact.URLPrefix))
	assert.True(t, strings.HasSuffix(key, "-My-Holiday-Photo.png"))
	assert.NotContains(t, key, "..")

	assert.True(t, strings.HasSuffix(artifact.NewKey("", ".jpg"), "-image.jpg"))
}

func TestLocalStore_Lifecycle(t *testing.T) {
	store := artifact.NewLocalStoreFs(afero.NewMemMapFs())
	ctx := context.Background()

	url, err := store.Save(ctx, "images/one.png", "image/png", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "images/one.png", url)

	ok, err := store.Exists(ctx, "/"+url)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, contentType, err := store.Open(ctx, url)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "data", string(body))
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, store.Delete(ctx, url))
	assert.ErrorIs(t, store.Delete(ctx, url), artifact.ErrNotFound)

	_, _, err = store.Open(ctx, url)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	_, err = store.Save(ctx, "../escape.png", "image/png", []byte("x"))
	assert.ErrorIs(t, err, artifact.ErrInvalidKey)
}

func TestValidate(t *testing.T) {
	png := testutil.TinyPNG(t, 4, 4)

	img, err := artifact.Validate(artifact.Upload{Filename: "a.png", ContentType: "image/png", Content: png}, 1024*1024)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, ".png", img.Ext)
	assert.Equal(t, 4, img.Width)

	_, err = artifact.Validate(artifact.Upload{Content: nil}, 1024)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = artifact.Validate(artifact.Upload{Content: png}, 10)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = artifact.Validate(artifact.Upload{Content: []byte("plain text, not an image")}, 1024)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = artifact.Validate(artifact.Upload{ContentType: "image/jpeg", Content: png}, 1024*1024)
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestStager_StageAndNormalize(t *testing.T) {
	store := artifact.NewLocalStoreFs(afero.NewMemMapFs())
	stager := artifact.NewStager(store, 1)
	ctx := context.Background()

	url, err := stager.Stage(ctx, artifact.Upload{Filename: "pic.jpg", ContentType: "image/jpeg", Content: testutil.TinyJPEG(t, 8, 8)})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "-pic.jpg"))

	ok, err := stager.Exists(ctx, url)
	require.NoError(t, err)
	assert.True(t, ok)

	big, err := artifact.Normalize(&artifact.Image{ContentType: "image/jpeg", Width: 4096, Height: 2048, Content: testutil.TinyJPEG(t, 4096, 2048)})
	require.NoError(t, err)
	assert.Equal(t, artifact.MaxDimension, big.Width)
	assert.Equal(t, 1024, big.Height)
}

type failingStore struct {
	*artifact.LocalStore
	err error
}

func (f failingStore) Delete(context.Context, string) error { return f.err }

func TestCleaner_Remove(t *testing.T) {
	store := artifact.NewLocalStoreFs(afero.NewMemMapFs())
	ctx := context.Background()
	url, err := store.Save(ctx, "images/x.png", "image/png", []byte("x"))
	require.NoError(t, err)

	c := artifact.NewCleaner(store)
	assert.True(t, c.Remove(ctx, "test", url))
	assert.True(t, c.Remove(ctx, "test", url), "missing artifacts count as removed")
	assert.False(t, c.Remove(ctx, "test", ""))

	broken := artifact.NewCleaner(failingStore{LocalStore: store, err: errors.New("disk on fire")})
	assert.False(t, broken.Remove(ctx, "test", "images/y.png"))

	var nilCleaner *artifact.Cleaner
	assert.False(t, nilCleaner.Remove(ctx, "test", url))
}

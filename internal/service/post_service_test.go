package service

import (
	"context"
	"errors"
	"testing"

	"feedline/internal/artifact"
	"feedline/internal/models"
	"feedline/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postFixture struct {
	svc       *PostService
	posts     *testutil.PostRepoStub
	users     *testutil.UserRepoStub
	artifacts *testutil.MemoryArtifacts
	publisher *testutil.RecordingPublisher
}

func newPostFixture(artifacts ...string) *postFixture {
	users := testutil.NewUserRepoStub()
	posts := testutil.NewPostRepoStub(users)
	store := testutil.NewMemoryArtifacts(artifacts...)
	publisher := &testutil.RecordingPublisher{}
	return &postFixture{
		svc:       NewPostService(posts, users, artifact.NewCleaner(store), publisher, 2),
		posts:     posts,
		users:     users,
		artifacts: store,
		publisher: publisher,
	}
}

func (f *postFixture) create(t *testing.T, callerID uint, title, imageURL string) *models.Post {
	t.Helper()
	post, err := f.svc.CreatePost(context.Background(), CreatePostInput{
		CallerID: callerID,
		Title:    title,
		Content:  "content of " + title,
		ImageURL: imageURL,
	})
	require.NoError(t, err)
	return post
}

// assertCode asserts that err is an AppError carrying code.
func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func TestCreatePost_ScenarioOwnerAndStranger(t *testing.T) {
	f := newPostFixture("images/a.png")
	u1 := f.users.Seed("Ada", "ada@example.com")
	u2 := f.users.Seed("Bob", "bob@example.com")
	ctx := context.Background()

	post, err := f.svc.CreatePost(ctx, CreatePostInput{CallerID: u1.ID, Title: "A", Content: "x", ImageURL: "images/a.png"})
	require.NoError(t, err)
	require.NotNil(t, post.Creator)
	assert.Equal(t, "Ada", post.Creator.Name)
	assert.Equal(t, []uint{post.ID}, f.users.OwnedPosts(u1.ID))

	err = f.svc.DeletePost(ctx, DeletePostInput{CallerID: u2.ID, PostID: post.ID})
	assertCode(t, err, models.CodeForbidden)

	got, err := f.svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
	assert.True(t, f.artifacts.Has("images/a.png"))
	assert.Empty(t, f.artifacts.Deleted())
}

func TestCreatePost_PublishesCreatorProjection(t *testing.T) {
	f := newPostFixture()
	u := f.users.Seed("Ada", "ada@example.com")

	post := f.create(t, u.ID, "hello", "images/h.png")

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.FeedChannel, events[0].Channel)
	assert.Equal(t, models.FeedActionCreate, events[0].Action)
	published, ok := events[0].Post.(models.Post)
	require.True(t, ok)
	assert.Equal(t, post.ID, published.ID)
	assert.Equal(t, "Ada", published.Creator.Name)
}

func TestCreatePost_Validation(t *testing.T) {
	f := newPostFixture()
	u := f.users.Seed("Ada", "ada@example.com")
	ctx := context.Background()

	tests := []struct {
		name    string
		in      CreatePostInput
		message string
	}{
		{"missing image", CreatePostInput{CallerID: u.ID, Title: "t", Content: "c"}, "No image provided."},
		{"blank title", CreatePostInput{CallerID: u.ID, Title: "  ", Content: "c", ImageURL: "images/x.png"}, "Validation failed, entered data is incorrect."},
		{"blank content", CreatePostInput{CallerID: u.ID, Title: "t", ImageURL: "images/x.png"}, "Validation failed, entered data is incorrect."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePost(ctx, tt.in)
			assertCode(t, err, models.CodeValidation)
			assert.Equal(t, tt.message, err.Error())
		})
	}

	total, err := f.posts.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, f.publisher.Events())
}

func TestCreatePost_OwnerLinkFailureIsSurfaced(t *testing.T) {
	f := newPostFixture()
	u := f.users.Seed("Ada", "ada@example.com")
	f.users.AddPostErr = testutil.ErrStoreDown
	ctx := context.Background()

	post, err := f.svc.CreatePost(ctx, CreatePostInput{CallerID: u.ID, Title: "t", Content: "c", ImageURL: "images/x.png"})
	require.ErrorIs(t, err, testutil.ErrStoreDown)
	require.NotNil(t, post, "stored post is reported with the error")
	assert.NotZero(t, post.ID)

	total, err := f.posts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "post persists despite the failed link")
	assert.Empty(t, f.publisher.Events())
}

func TestCreatePost_PublishFailureIsSwallowed(t *testing.T) {
	f := newPostFixture()
	f.publisher.Err = errors.New("bus down")
	u := f.users.Seed("Ada", "ada@example.com")

	post := f.create(t, u.ID, "t", "images/x.png")
	assert.NotZero(t, post.ID)
	assert.Len(t, f.publisher.Events(), 1)
}

func TestGetPost_NotFound(t *testing.T) {
	f := newPostFixture()
	_, err := f.svc.GetPost(context.Background(), 42)
	assertCode(t, err, models.CodeNotFound)
}

func TestListPosts_Pagination(t *testing.T) {
	f := newPostFixture()
	u := f.users.Seed("Ada", "ada@example.com")
	for _, title := range []string{"p1", "p2", "p3", "p4", "p5"} {
		f.create(t, u.ID, title, "images/"+title+".png")
	}

	page, err := f.svc.ListPosts(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalItems)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, "p3", page.Posts[0].Title)
	assert.Equal(t, "p2", page.Posts[1].Title)
	assert.Equal(t, "Ada", page.Posts[0].Creator.Name)
}

func TestListPosts_Defaults(t *testing.T) {
	f := newPostFixture()
	u := f.users.Seed("Ada", "ada@example.com")
	for _, title := range []string{"p1", "p2", "p3"} {
		f.create(t, u.ID, title, "images/"+title+".png")
	}

	page, err := f.svc.ListPosts(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, "p3", page.Posts[0].Title)

	empty, err := f.svc.ListPosts(context.Background(), 9, 2)
	require.NoError(t, err)
	assert.NotNil(t, empty.Posts)
	assert.Empty(t, empty.Posts)

	_, size := f.svc.NormalizePage(1, 1000)
	assert.Equal(t, MaxPageSize, size)
}

func TestListPosts_StoreUnavailable(t *testing.T) {
	f := newPostFixture()
	f.posts.Err = testutil.ErrStoreDown

	_, err := f.svc.ListPosts(context.Background(), 1, 2)
	require.ErrorIs(t, err, testutil.ErrStoreDown)
	assert.Equal(t, 500, models.StatusFor(err))
}

func TestUpdatePost_ReplacesImage(t *testing.T) {
	f := newPostFixture("images/old.png", "images/new.png")
	u := f.users.Seed("Ada", "ada@example.com")
	post := f.create(t, u.ID, "t", "images/old.png")

	updated, err := f.svc.UpdatePost(context.Background(), UpdatePostInput{
		CallerID: u.ID, PostID: post.ID, Title: "t2", Content: "c2", ImageURL: "images/new.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.Title)
	assert.Equal(t, "images/new.png", updated.ImageURL)
	assert.Equal(t, []string{"images/old.png"}, f.artifacts.Deleted())
	assert.True(t, f.artifacts.Has("images/new.png"))

	events := f.publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.FeedActionUpdate, events[1].Action)
}

func TestUpdatePost_SameImageKeepsArtifact(t *testing.T) {
	f := newPostFixture("images/old.png")
	u := f.users.Seed("Ada", "ada@example.com")
	post := f.create(t, u.ID, "t", "images/old.png")

	_, err := f.svc.UpdatePost(context.Background(), UpdatePostInput{
		CallerID: u.ID, PostID: post.ID, Title: "t2", Content: "c2", ImageURL: "images/old.png",
	})
	require.NoError(t, err)
	assert.Empty(t, f.artifacts.Deleted())
}

func TestUpdatePost_CleanupFailureDoesNotFail(t *testing.T) {
	f := newPostFixture("images/old.png")
	f.artifacts.DeleteErr = errors.New("disk gone")
	u := f.users.Seed("Ada", "ada@example.com")
	post := f.create(t, u.ID, "t", "images/old.png")

	updated, err := f.svc.UpdatePost(context.Background(), UpdatePostInput{
		CallerID: u.ID, PostID: post.ID, Title: "t", Content: "c", ImageURL: "images/new.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "images/new.png", updated.ImageURL)
}

func TestUpdatePost_Rejections(t *testing.T) {
	f := newPostFixture("images/old.png")
	owner := f.users.Seed("Ada", "ada@example.com")
	other := f.users.Seed("Bob", "bob@example.com")
	post := f.create(t, owner.ID, "t", "images/old.png")
	ctx := context.Background()

	t.Run("stranger is forbidden even with invalid input", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, UpdatePostInput{CallerID: other.ID, PostID: post.ID})
		assertCode(t, err, models.CodeForbidden)
		assert.Equal(t, "Not authorized!", err.Error())
	})

	t.Run("missing post", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, UpdatePostInput{CallerID: owner.ID, PostID: 999, Title: "t", Content: "c", ImageURL: "images/x.png"})
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("no image resolvable", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, UpdatePostInput{CallerID: owner.ID, PostID: post.ID, Title: "t", Content: "c"})
		assertCode(t, err, models.CodeValidation)
		assert.Equal(t, "No file picked.", err.Error())
	})

	stored, err := f.svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", stored.Title)
	assert.Equal(t, "images/old.png", stored.ImageURL)
	assert.Empty(t, f.artifacts.Deleted())
	assert.Len(t, f.publisher.Events(), 1)
}

func TestDeletePost(t *testing.T) {
	f := newPostFixture("images/a.png", "images/b.png")
	u := f.users.Seed("Ada", "ada@example.com")
	keep := f.create(t, u.ID, "keep", "images/a.png")
	gone := f.create(t, u.ID, "gone", "images/b.png")
	ctx := context.Background()

	require.NoError(t, f.svc.DeletePost(ctx, DeletePostInput{CallerID: u.ID, PostID: gone.ID}))

	_, err := f.svc.GetPost(ctx, gone.ID)
	assertCode(t, err, models.CodeNotFound)
	total, err := f.posts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []uint{keep.ID}, f.users.OwnedPosts(u.ID))
	assert.False(t, f.artifacts.Has("images/b.png"))
	assert.True(t, f.artifacts.Has("images/a.png"))

	events := f.publisher.Events()
	last := events[len(events)-1]
	assert.Equal(t, models.FeedActionDelete, last.Action)
	assert.Equal(t, gone.ID, last.Post)
}

func TestDeletePost_MissingArtifactStillDeletes(t *testing.T) {
	f := newPostFixture()
	u := f.users.Seed("Ada", "ada@example.com")
	post := f.create(t, u.ID, "t", "images/never-stored.png")

	require.NoError(t, f.svc.DeletePost(context.Background(), DeletePostInput{CallerID: u.ID, PostID: post.ID}))
	_, err := f.svc.GetPost(context.Background(), post.ID)
	assertCode(t, err, models.CodeNotFound)
}

func TestDeletePost_NotFound(t *testing.T) {
	f := newPostFixture()
	err := f.svc.DeletePost(context.Background(), DeletePostInput{CallerID: 1, PostID: 7})
	assertCode(t, err, models.CodeNotFound)
	assert.Empty(t, f.publisher.Events())
}

func TestUpdatePost_FailedWriteIsNotPublished(t *testing.T) {
	f := newPostFixture("images/a.png", "images/b.png")
	u := f.users.Seed("Ada", "ada@example.com")
	post := f.create(t, u.ID, "t", "images/a.png")
	f.posts.UpdateErr = testutil.ErrStoreDown

	_, err := f.svc.UpdatePost(context.Background(), UpdatePostInput{
		CallerID: u.ID, PostID: post.ID, Title: "new", Content: "c", ImageURL: "images/b.png",
	})
	require.ErrorIs(t, err, testutil.ErrStoreDown)

	got, err := f.svc.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
	assert.Len(t, f.publisher.Events(), 1, "only the create event")
}

func TestDeletePost_FailedWritesAreNotPublished(t *testing.T) {
	tests := []struct {
		name      string
		breakRepo func(f *postFixture)
		postGone  bool
	}{
		{"post delete fails", func(f *postFixture) { f.posts.DeleteErr = testutil.ErrStoreDown }, false},
		{"owner unlink fails", func(f *postFixture) { f.users.RemovePostErr = testutil.ErrStoreDown }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPostFixture("images/a.png")
			u := f.users.Seed("Ada", "ada@example.com")
			post := f.create(t, u.ID, "t", "images/a.png")
			tt.breakRepo(f)
			ctx := context.Background()

			err := f.svc.DeletePost(ctx, DeletePostInput{CallerID: u.ID, PostID: post.ID})
			require.ErrorIs(t, err, testutil.ErrStoreDown)

			_, err = f.posts.GetByID(ctx, post.ID)
			if tt.postGone {
				assertCode(t, err, models.CodeNotFound)
			} else {
				require.NoError(t, err)
			}
			events := f.publisher.Events()
			require.Len(t, events, 1)
			assert.Equal(t, models.FeedActionCreate, events[0].Action)
		})
	}
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedline/internal/models"
	"feedline/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const driverMongo = "mongo"

const (
	usersCollection    = "users"
	postsCollection    = "posts"
	countersCollection = "counters"
)

type userDoc struct {
	ID        uint      `bson:"_id"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	Name      string    `bson:"name"`
	Status    string    `bson:"status"`
	Posts     []uint    `bson:"posts"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d userDoc) toModel() *models.User {
	return &models.User{
		ID:        d.ID,
		Email:     d.Email,
		Password:  d.Password,
		Name:      d.Name,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type postDoc struct {
	ID        uint      `bson:"_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	ImageURL  string    `bson:"imageUrl"`
	CreatorID uint      `bson:"creator"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func newPostDoc(p *models.Post) postDoc {
	return postDoc{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		CreatorID: p.CreatorID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (d postDoc) toModel() models.Post {
	return models.Post{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		ImageURL:  d.ImageURL,
		CreatorID: d.CreatorID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// nextID allocates a sequential numeric id for name from the counters collection.
func nextID(ctx context.Context, db *mongo.Database, name string) (uint, error) {
	var counter struct {
		Seq uint `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := db.Collection(countersCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": 1}}, opts).
		Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", name, err)
	}
	return counter.Seq, nil
}

// EnsureMongoIndexes creates the indexes the repositories rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users.email index: %w", err)
	}
	_, err = db.Collection(postsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create posts.createdAt index: %w", err)
	}
	return nil
}

type mongoPostRepository struct {
	db     *mongo.Database
	col    *mongo.Collection
	users  *mongo.Collection
	logger *observability.RepoLogger
}

// NewMongoPostRepository returns a PostRepository backed by MongoDB.
func NewMongoPostRepository(db *mongo.Database) PostRepository {
	return &mongoPostRepository{
		db:     db,
		col:    db.Collection(postsCollection),
		users:  db.Collection(usersCollection),
		logger: observability.NewRepoLogger(driverMongo, postsCollection),
	}
}

func (r *mongoPostRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery(driverMongo, "create", postsCollection)()
	id, err := nextID(ctx, r.db, postsCollection)
	if err != nil {
		return models.NewInternalError(err)
	}
	now := time.Now().UTC()
	post.ID = id
	post.CreatedAt = now
	post.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, newPostDoc(post)); err != nil {
		r.logger.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.logger.LogCreate(ctx, map[string]any{"post_id": post.ID, "creator_id": post.CreatorID})
	return nil
}

func (r *mongoPostRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	defer observability.TrackQuery(driverMongo, "get", postsCollection)()
	var doc postDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("post")
		}
		return nil, models.NewInternalError(err)
	}
	posts := []models.Post{doc.toModel()}
	if err := r.attachCreators(ctx, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

func (r *mongoPostRepository) List(ctx context.Context, limit, offset int) ([]models.Post, error) {
	defer observability.TrackQuery(driverMongo, "list", postsCollection)()
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer cur.Close(ctx)

	var docs []postDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, models.NewInternalError(err)
	}
	posts := make([]models.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, d.toModel())
	}
	if err := r.attachCreators(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// attachCreators populates Creator on posts with a single $in lookup.
func (r *mongoPostRepository) attachCreators(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.CreatorID)
	}
	cur, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1}))
	if err != nil {
		return models.NewInternalError(err)
	}
	defer cur.Close(ctx)

	var users []userDoc
	if err := cur.All(ctx, &users); err != nil {
		return models.NewInternalError(err)
	}
	byID := make(map[uint]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u.toModel()
	}
	for i := range posts {
		if u, ok := byID[posts[i].CreatorID]; ok {
			posts[i].Creator = u
		}
	}
	return nil
}

func (r *mongoPostRepository) Count(ctx context.Context) (int64, error) {
	defer observability.TrackQuery(driverMongo, "count", postsCollection)()
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return total, nil
}

func (r *mongoPostRepository) Update(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery(driverMongo, "update", postsCollection)()
	post.UpdatedAt = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": post.ID}, bson.M{"$set": bson.M{
		"title":     post.Title,
		"content":   post.Content,
		"imageUrl":  post.ImageURL,
		"updatedAt": post.UpdatedAt,
	}})
	if err != nil {
		r.logger.LogError(ctx, err, "update")
		return models.NewInternalError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("post")
	}
	r.logger.LogUpdate(ctx, map[string]any{"post_id": post.ID})
	return nil
}

func (r *mongoPostRepository) Delete(ctx context.Context, id uint) error {
	defer observability.TrackQuery(driverMongo, "delete", postsCollection)()
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.LogError(ctx, err, "delete")
		return models.NewInternalError(err)
	}
	if res.DeletedCount == 0 {
		return models.NewNotFoundError("post")
	}
	r.logger.LogDelete(ctx, map[string]any{"post_id": id})
	return nil
}

type mongoUserRepository struct {
	db     *mongo.Database
	col    *mongo.Collection
	logger *observability.RepoLogger
}

// NewMongoUserRepository returns a UserRepository backed by MongoDB.
func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{
		db:     db,
		col:    db.Collection(usersCollection),
		logger: observability.NewRepoLogger(driverMongo, usersCollection),
	}
}

func (r *mongoUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	defer observability.TrackQuery(driverMongo, "get", usersCollection)()
	var doc userDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("user")
		}
		return nil, models.NewInternalError(err)
	}
	return doc.toModel(), nil
}

func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer observability.TrackQuery(driverMongo, "get_by_email", usersCollection)()
	var doc userDoc
	if err := r.col.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return doc.toModel(), nil
}

func (r *mongoUserRepository) Create(ctx context.Context, user *models.User) error {
	defer observability.TrackQuery(driverMongo, "create", usersCollection)()
	id, err := nextID(ctx, r.db, usersCollection)
	if err != nil {
		return models.NewInternalError(err)
	}
	now := time.Now().UTC()
	user.ID = id
	user.Email = normalizeEmail(user.Email)
	if user.Status == "" {
		user.Status = models.DefaultUserStatus
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	doc := userDoc{
		ID:        user.ID,
		Email:     user.Email,
		Password:  user.Password,
		Name:      user.Name,
		Status:    user.Status,
		Posts:     []uint{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.NewValidationError(EmailExistsMessage,
				models.FieldError{Field: "email", Message: EmailExistsMessage})
		}
		r.logger.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.logger.LogCreate(ctx, map[string]any{"user_id": user.ID})
	return nil
}

func (r *mongoUserRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.update(ctx, "update_status", id, bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}})
}

func (r *mongoUserRepository) AddPost(ctx context.Context, userID, postID uint) error {
	return r.update(ctx, "add_post", userID, bson.M{"$addToSet": bson.M{"posts": postID}})
}

func (r *mongoUserRepository) RemovePost(ctx context.Context, userID, postID uint) error {
	return r.update(ctx, "remove_post", userID, bson.M{"$pull": bson.M{"posts": postID}})
}

func (r *mongoUserRepository) update(ctx context.Context, op string, id uint, change bson.M) error {
	defer observability.TrackQuery(driverMongo, op, usersCollection)()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, change)
	if err != nil {
		r.logger.LogError(ctx, err, op)
		return models.NewInternalError(err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("user")
	}
	return nil
}

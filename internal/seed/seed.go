// Package seed fills a store with demo accounts and posts for development.
// Everything goes through the service layer so seeded data obeys the same
// validation and ownership bookkeeping as real traffic.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"strings"

	"feedline/internal/artifact"
	"feedline/internal/middleware"
	"feedline/internal/models"
	"feedline/internal/repository"
	"feedline/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

const imageSize = 64

// Options configuration for the seeder
type Options struct {
	Users        int
	PostsPerUser int
	// Password is given to every generated account and to fixture users without one.
	Password   string
	BcryptCost int
	// RandSeed makes generated data reproducible when non-zero.
	RandSeed int64
}

// Summary counts what a run created.
type Summary struct {
	Users   int
	Posts   int
	Skipped int
}

type Seeder struct {
	users  repository.UserRepository
	auth   *service.AuthService
	posts  *service.PostService
	stager *artifact.Stager
	opts   Options
	faker  *gofakeit.Faker
}

func New(repos repository.Repositories, store artifact.Store, opts Options) *Seeder {
	return &Seeder{
		users:  repos.Users,
		auth:   service.NewAuthService(repos.Users, nil, opts.BcryptCost),
		posts:  service.NewPostService(repos.Posts, repos.Users, artifact.NewCleaner(store), nil, 0),
		stager: artifact.NewStager(store, 0),
		opts:   opts,
		faker:  gofakeit.New(opts.RandSeed),
	}
}

// Run creates fixture users and posts when fx is non-nil, otherwise
// Options.Users generated accounts with Options.PostsPerUser posts each.
// Accounts whose email already exists are skipped.
func (s *Seeder) Run(ctx context.Context, fx *Fixtures) (Summary, error) {
	if fx == nil {
		fx = s.generate()
	}

	var sum Summary
	for _, fu := range fx.Users {
		user, created, err := s.ensureUser(ctx, fu)
		if err != nil {
			return sum, err
		}
		if !created {
			sum.Skipped++
			continue
		}
		sum.Users++

		for _, fp := range fu.Posts {
			if err := s.createPost(ctx, user.ID, fp); err != nil {
				return sum, fmt.Errorf("seed post %q for %s: %w", fp.Title, fu.Email, err)
			}
			sum.Posts++
		}
	}

	middleware.Logger.Info("seed complete",
		slog.Int("users", sum.Users),
		slog.Int("posts", sum.Posts),
		slog.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

func (s *Seeder) ensureUser(ctx context.Context, fu FixtureUser) (*models.User, bool, error) {
	existing, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(fu.Email)))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	password := fu.Password
	if password == "" {
		password = s.opts.Password
	}
	user, err := s.auth.Signup(ctx, service.SignupInput{Email: fu.Email, Password: password, Name: fu.Name})
	if err != nil {
		return nil, false, fmt.Errorf("seed user %s: %w", fu.Email, err)
	}
	if fu.Status != "" {
		if _, err := s.auth.UpdateStatus(ctx, user.ID, fu.Status); err != nil {
			return nil, false, fmt.Errorf("seed status for %s: %w", fu.Email, err)
		}
	}
	return user, true, nil
}

func (s *Seeder) createPost(ctx context.Context, userID uint, fp FixturePost) error {
	url, err := s.stager.Stage(ctx, artifact.Upload{
		Filename:    "seed.png",
		ContentType: "image/png",
		Content:     s.swatch(),
	})
	if err != nil {
		return err
	}
	_, err = s.posts.CreatePost(ctx, service.CreatePostInput{
		CallerID: userID,
		Title:    fp.Title,
		Content:  fp.Content,
		ImageURL: url,
	})
	return err
}

func (s *Seeder) generate() *Fixtures {
	fx := &Fixtures{}
	for i := 0; i < s.opts.Users; i++ {
		u := FixtureUser{
			Email:  fmt.Sprintf("%s.%d@example.com", strings.ToLower(s.faker.Username()), i+1),
			Name:   s.faker.Name(),
			Status: s.faker.HipsterSentence(4),
		}
		for j := 0; j < s.opts.PostsPerUser; j++ {
			u.Posts = append(u.Posts, FixturePost{
				Title:   strings.TrimSuffix(s.faker.Sentence(5), "."),
				Content: s.faker.Paragraph(1, 3, 12, " "),
			})
		}
		fx.Users = append(fx.Users, u)
	}
	return fx
}

// swatch renders a solid-colour PNG to stand in for a photo.
func (s *Seeder) swatch() []byte {
	img := image.NewRGBA(image.Rect(0, 0, imageSize, imageSize))
	fill := color.RGBA{R: s.faker.Uint8(), G: s.faker.Uint8(), B: s.faker.Uint8(), A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

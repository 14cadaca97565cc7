// Command libcatalog-seed fills an empty catalog with an admin account and sample data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/libcatalog/internal/crypto"
	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/migrate"
	"github.com/and161185/libcatalog/internal/model"
	"github.com/and161185/libcatalog/internal/repository"
	"github.com/and161185/libcatalog/internal/repository/postgres"
	"github.com/and161185/libcatalog/internal/service"
)

type sampleBook struct {
	title       string
	year        int32
	genre       string
	description string
	author      string
}

var (
	sampleAuthors = []model.Author{
		{FullName: "Ліна Костенко", Country: strp("Україна")},
		{FullName: "Іван Франко", Country: strp("Україна")},
		{FullName: "Леся Українка", Country: strp("Україна")},
	}
	sampleBooks = []sampleBook{
		{"Маруся Чурай", 1979, "Роман", "Історичний роман про українську героїню", "Ліна Костенко"},
		{"Захар Беркут", 1883, "Історичний", "Розповідь про боротьбу карпатських людей", "Іван Франко"},
		{"Лісова пісня", 1911, "Драма", "Міфологічна драма про кохання та природу", "Леся Українка"},
	}
)

func strp(s string) *string { return &s }

type seeder struct {
	log     *zap.Logger
	users   repository.UserRepository
	auth    service.AuthService
	catalog service.CatalogService
}

// run is idempotent: existing accounts, authors and titles are reused.
func (s *seeder) run(ctx context.Context, admin, password string) error {
	u, err := s.auth.Register(ctx, admin, password)
	switch {
	case errors.Is(err, errs.ErrAlreadyExists):
		if u, err = s.users.GetByUsername(ctx, admin); err != nil {
			return fmt.Errorf("load %s: %w", admin, err)
		}
		s.log.Info("user exists", zap.String("username", admin))
	case err != nil:
		return fmt.Errorf("register %s: %w", admin, err)
	default:
		s.log.Info("user created", zap.String("username", admin))
	}

	existing, err := s.catalog.ListAuthors(ctx, 0, 0)
	if err != nil {
		return err
	}
	ids := make(map[string]int64, len(existing))
	for _, a := range existing {
		ids[a.FullName] = a.ID
	}
	for _, a := range sampleAuthors {
		if _, ok := ids[a.FullName]; ok {
			continue
		}
		created, err := s.catalog.CreateAuthor(ctx, a)
		if err != nil {
			return fmt.Errorf("author %s: %w", a.FullName, err)
		}
		ids[a.FullName] = created.ID
		s.log.Info("author created", zap.String("name", a.FullName), zap.Int64("id", created.ID))
	}

	books, err := s.catalog.ListBooks(ctx, 0, 0)
	if err != nil {
		return err
	}
	titles := make(map[string]bool, len(books))
	for _, b := range books {
		titles[b.Title] = true
	}
	for _, sb := range sampleBooks {
		if titles[sb.title] {
			continue
		}
		year, genre, desc := sb.year, sb.genre, sb.description
		b, err := s.catalog.CreateBook(ctx, u.ID, model.Book{
			Title:           sb.title,
			PublicationYear: &year,
			Genre:           &genre,
			Description:     &desc,
			AuthorID:        ids[sb.author],
		})
		if err != nil {
			return fmt.Errorf("book %s: %w", sb.title, err)
		}
		s.log.Info("book created", zap.String("title", b.Title), zap.Int64("id", b.ID))
	}
	return nil
}

func main() {
	fs := pflag.NewFlagSet("libcatalog-seed", pflag.ContinueOnError)
	dsn := fs.String("dsn", os.Getenv("LIBCAT_DSN"), "PostgreSQL DSN")
	admin := fs.String("admin", "admin", "admin username")
	password := fs.String("password", os.Getenv("LIBCAT_ADMIN_PASSWORD"), "admin password (required)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	if *dsn == "" || *password == "" {
		logger.Fatal("--dsn and --password are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, *dsn); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	db, err := postgres.New(ctx, *dsn)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	users := postgres.NewUserRepo(db)
	s := &seeder{
		log:     logger,
		users:   users,
		auth:    service.NewAuthService(users, pkgcrypto.NewHasher(pkgcrypto.DefaultParams), nil, 0, nil),
		catalog: service.NewCatalogService(postgres.NewAuthorRepo(db), postgres.NewBookRepo(db), 0),
	}
	if err := s.run(ctx, *admin, *password); err != nil {
		logger.Fatal("seed", zap.Error(err))
	}
	logger.Info("seed complete")
}

// Command seed-db provisions a development database: the embedded product
// catalog, a couple of demo coupons, and the user/admin bearer tokens
// (stored as HMAC-SHA256 hashes, never raw).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/souq-labs/souq-api/db"
	"github.com/souq-labs/souq-api/internal/domain/auth"
	"github.com/souq-labs/souq-api/internal/domain/coupon"
	"github.com/souq-labs/souq-api/internal/domain/product"
	"github.com/souq-labs/souq-api/internal/repository"
)

type productJSON struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Price       decimal.Decimal  `json:"price"`
	SalePrice   *decimal.Decimal `json:"sale_price"`
	Stock       int              `json:"stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		userToken    string
		adminToken   string
		pepper       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (default: embedded catalog)")
	flag.StringVar(&userToken, "user-token", "", "bearer token to seed for the demo user (or SOUQ_SEED_USER_TOKEN env)")
	flag.StringVar(&adminToken, "admin-token", "", "bearer token to seed for the admin (or SOUQ_SEED_ADMIN_TOKEN env)")
	flag.StringVar(&pepper, "token-pepper", "", "HMAC pepper for token hashing (or SOUQ_TOKEN_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if userToken == "" {
		userToken = os.Getenv("SOUQ_SEED_USER_TOKEN")
	}
	if adminToken == "" {
		adminToken = os.Getenv("SOUQ_SEED_ADMIN_TOKEN")
	}
	if pepper == "" {
		pepper = os.Getenv("SOUQ_TOKEN_PEPPER")
	}
	if (userToken != "" || adminToken != "") && pepper == "" {
		slog.Error("token pepper is required when seeding tokens: set --token-pepper or SOUQ_TOKEN_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, userToken, adminToken, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, userToken, adminToken, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedTokens(ctx, pool, userToken, adminToken, pepper); err != nil {
		return errors.Wrap(err, "seed tokens")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))
		var err error
		data, err = os.ReadFile(productsFile)
		if err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	var entries []productJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	repo := repository.NewProductRepository(pool)
	for _, e := range entries {
		p := &product.Product{
			ID:          uuid.New().String(),
			Name:        e.Name,
			Description: e.Description,
			Category:    e.Category,
			Price:       e.Price,
			SalePrice:   e.SalePrice,
			Stock:       e.Stock,
			IsActive:    true,
		}
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "create product %q", e.Name)
		}
	}

	slog.Info("products seeded", slog.Int("count", len(entries)))
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	ten := decimal.NewFromInt(10)
	min50 := decimal.NewFromInt(50)
	limit100 := 100

	demo := []coupon.Coupon{
		{
			ID:       uuid.New().String(),
			Code:     "WELCOME10",
			Value:    ten,
			IsActive: true,
		},
		{
			ID:             uuid.New().String(),
			Code:           "SAVE20",
			Value:          decimal.NewFromInt(20),
			MinOrderAmount: &min50,
			UsageLimit:     &limit100,
			IsActive:       true,
		},
	}

	repo := repository.NewCouponRepository(pool)
	for i := range demo {
		err := repo.Create(ctx, &demo[i])
		if errors.Is(err, coupon.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create coupon %q", demo[i].Code)
		}
	}

	slog.Info("coupons seeded", slog.Int("count", len(demo)))
	return nil
}

const upsertTokenSQL = `INSERT INTO auth_tokens (token_hash, user_id, role)
	VALUES ($1, $2, $3)
	ON CONFLICT (token_hash) DO UPDATE SET active = TRUE`

func seedTokens(ctx context.Context, pool *pgxpool.Pool, userToken, adminToken, pepper string) error {
	seed := func(token, userID string, role auth.Role) error {
		if token == "" {
			return nil
		}
		hash := auth.HashToken([]byte(pepper), token)
		if _, err := pool.Exec(ctx, upsertTokenSQL, hash, userID, string(role)); err != nil {
			return errors.Wrapf(err, "seed token for %s", userID)
		}
		slog.Info("token seeded", slog.String("user", userID), slog.String("role", string(role)))
		return nil
	}

	if err := seed(userToken, "demo-user", auth.RoleUser); err != nil {
		return err
	}
	return seed(adminToken, "demo-admin", auth.RoleAdmin)
}

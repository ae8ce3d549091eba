package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultTier is used for users without a tier and for tiers that have no
// shipping rule of their own.
const DefaultTier = "standard"

var ErrNoShippingRule = errors.New("no shipping rule")

// Repository holds the product list and the pricing rules in SQLite.
type Repository struct {
	db *sql.DB
}

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if e2 := db.Ping(); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", e2)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{
		MigrationsTable: "catalog_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}
	return nil
}

// PriceRules returns the breakdown for cart: the subtotal, the shipping fee
// for the user's tier (waived at or above the tier's free threshold), and the
// tier's service fee when one applies.
func (r *Repository) PriceRules(ctx context.Context, user domain.UserIdentity, cart domain.CartSnapshot) ([]domain.PriceBreakdownItem, error) {
	subtotal := cart.TotalPrice()

	rule, err := r.shippingRule(ctx, user.Tier)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCatalog, err)
	}

	shipping := rule.fee
	if rule.freeThreshold.Valid && subtotal >= rule.freeThreshold.Int64 {
		shipping = 0
	}

	breakdown := []domain.PriceBreakdownItem{
		{Name: domain.BreakdownSubtotal, Amount: subtotal},
		{Name: domain.BreakdownShipping, Amount: shipping},
	}

	fee, ok, err := r.serviceFee(ctx, rule.tier, subtotal)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCatalog, err)
	}
	if ok {
		breakdown = append(breakdown, domain.PriceBreakdownItem{Name: domain.BreakdownServiceFee, Amount: fee})
	}
	return breakdown, nil
}

type shippingRule struct {
	tier          string
	fee           int64
	freeThreshold sql.NullInt64
}

func (r *Repository) shippingRule(ctx context.Context, tier string) (shippingRule, error) {
	if tier == "" {
		tier = DefaultTier
	}

	query := `SELECT tier, fee, free_threshold FROM shipping_rules WHERE tier = ?`

	var rule shippingRule
	err := r.db.QueryRowContext(ctx, query, tier).Scan(&rule.tier, &rule.fee, &rule.freeThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		if tier != DefaultTier {
			return r.shippingRule(ctx, DefaultTier)
		}
		return shippingRule{}, fmt.Errorf("%w for tier %q", ErrNoShippingRule, tier)
	}
	if err != nil {
		return shippingRule{}, fmt.Errorf("query shipping rule: %w", err)
	}
	return rule, nil
}

func (r *Repository) serviceFee(ctx context.Context, tier string, subtotal int64) (int64, bool, error) {
	query := `SELECT amount, min_subtotal FROM service_fees WHERE tier = ?`

	var amount, minSubtotal int64
	err := r.db.QueryRowContext(ctx, query, tier).Scan(&amount, &minSubtotal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query service fee: %w", err)
	}
	if subtotal < minSubtotal {
		return 0, false, nil
	}
	return amount, true, nil
}

// SetShippingRule creates or replaces the rule for tier. A nil freeThreshold
// means shipping is never waived.
func (r *Repository) SetShippingRule(ctx context.Context, tier string, fee int64, freeThreshold *int64) error {
	query := `INSERT INTO shipping_rules (tier, fee, free_threshold) VALUES (?, ?, ?)
	          ON CONFLICT (tier) DO UPDATE SET fee = excluded.fee, free_threshold = excluded.free_threshold`

	var threshold sql.NullInt64
	if freeThreshold != nil {
		threshold = sql.NullInt64{Int64: *freeThreshold, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, tier, fee, threshold); err != nil {
		return fmt.Errorf("upsert shipping rule: %w", err)
	}
	return nil
}

// SetServiceFee creates or replaces the service fee for tier, charged when the
// subtotal is at least minSubtotal.
func (r *Repository) SetServiceFee(ctx context.Context, tier string, amount, minSubtotal int64) error {
	query := `INSERT INTO service_fees (tier, amount, min_subtotal) VALUES (?, ?, ?)
	          ON CONFLICT (tier) DO UPDATE SET amount = excluded.amount, min_subtotal = excluded.min_subtotal`

	if _, err := r.db.ExecContext(ctx, query, tier, amount, minSubtotal); err != nil {
		return fmt.Errorf("upsert service fee: %w", err)
	}
	return nil
}

// GetProduct returns an active product. Unknown and inactive products are
// domain.ErrProductNotFound.
func (r *Repository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	query := `SELECT id, name, price FROM products WHERE id = ? AND active = 1`

	var p domain.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: %d", domain.ErrProductNotFound, id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// SetProduct creates or replaces a product.
func (r *Repository) SetProduct(ctx context.Context, p domain.Product, active bool) error {
	query := `INSERT INTO products (id, name, price, active) VALUES (?, ?, ?, ?)
	          ON CONFLICT (id) DO UPDATE SET name = excluded.name, price = excluded.price, active = excluded.active`

	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Price, active); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateCheckout = errors.New("order for this checkout already exists")
)

const StatusConfirmed = "CONFIRMED"

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Order struct {
	ID         uuid.UUID
	CheckoutID uuid.UUID
	UserID     string
	Total      int64
	Status     string
	Items      []domain.CartLineItem
	Breakdown  []domain.PriceBreakdownItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (o *Order) Confirmation() domain.OrderConfirmation {
	return domain.OrderConfirmation{
		OrderID:    o.ID,
		CheckoutID: o.CheckoutID,
		PlacedAt:   o.CreatedAt,
	}
}

// Repository places orders in PostgreSQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// SubmitOrder stores data as a confirmed order. Submitting the same
// checkoutID twice returns the order stored the first time.
func (r *Repository) SubmitOrder(ctx context.Context, checkoutID uuid.UUID, data domain.CheckoutData) (domain.OrderConfirmation, error) {
	order := &Order{
		ID:         uuid.New(),
		CheckoutID: checkoutID,
		UserID:     data.Cart.Scope.String(),
		Total:      data.TotalPrice(),
		Status:     StatusConfirmed,
		Items:      data.Cart.Items,
		Breakdown:  data.Breakdown,
	}

	err := r.CreateOrder(ctx, order)
	if errors.Is(err, ErrDuplicateCheckout) {
		existing, errGet := r.GetOrderByCheckoutID(ctx, checkoutID)
		if errGet != nil {
			return domain.OrderConfirmation{}, domain.Wrap(domain.ErrOrder, errGet)
		}
		return existing.Confirmation(), nil
	}
	if err != nil {
		return domain.OrderConfirmation{}, domain.Wrap(domain.ErrOrder, err)
	}
	return order.Confirmation(), nil
}

func (r *Repository) CreateOrder(ctx context.Context, order *Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	breakdownJSON, err := json.Marshal(order.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal order breakdown: %w", err)
	}

	query := `INSERT INTO orders (id, checkout_id, user_id, total, status, items, breakdown, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	          RETURNING created_at, updated_at`

	insertErr := r.db.QueryRowContext(ctx, query,
		order.ID,
		order.CheckoutID,
		order.UserID,
		order.Total,
		order.Status,
		itemsJSON,
		breakdownJSON).Scan(&order.CreatedAt, &order.UpdatedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

const selectOrder = `SELECT id, checkout_id, user_id, total, status, items, breakdown, created_at, updated_at FROM orders`

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOrder(ctx, selectOrder+` WHERE id = $1`, id)
}

func (r *Repository) GetOrderByCheckoutID(ctx context.Context, checkoutID uuid.UUID) (*Order, error) {
	return r.getOrder(ctx, selectOrder+` WHERE checkout_id = $1`, checkoutID)
}

func (r *Repository) getOrder(ctx context.Context, query string, arg any) (*Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	var order Order
	var itemsJSON, breakdownJSON []byte
	if err := row.Scan(
		&order.ID,
		&order.CheckoutID,
		&order.UserID,
		&order.Total,
		&order.Status,
		&itemsJSON,
		&breakdownJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(breakdownJSON, &order.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal order breakdown: %w", err)
	}
	return &order, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

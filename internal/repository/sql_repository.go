package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/cartql/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type dialect struct {
	name            string
	numbered        bool
	uniqueViolation func(error) bool
	migrateDriver   func(*sql.DB) (database.Driver, error)
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	uniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
	migrateDriver: func(db *sql.DB) (database.Driver, error) {
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: "cart_schema_migrations"})
	},
}

var sqliteDialect = dialect{
	name: "sqlite",
	uniqueViolation: func(err error) bool {
		var sqErr *moderncsqlite.Error
		if !errors.As(err, &sqErr) {
			return false
		}
		code := sqErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	},
	migrateDriver: func(db *sql.DB) (database.Driver, error) {
		return sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: "cart_schema_migrations"})
	},
}

// SQLRepository stores carts in PostgreSQL or SQLite. Queries are written
// with '?' placeholders and rebound for the dialect.
type SQLRepository struct {
	db      *sql.DB
	dialect dialect
}

func NewPostgresRepository(cred *Credentials) (*SQLRepository, error) {
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
	return &SQLRepository{db: db, dialect: postgresDialect}, nil
}

func NewSQLiteRepository(path string) (*SQLRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	// sqlite serialises writers anyway
	db.SetMaxOpenConns(1)
	return &SQLRepository{db: db, dialect: sqliteDialect}, nil
}

// RunMigrations applies the migrations under dir/<dialect>.
func (r *SQLRepository) RunMigrations(dir string) error {
	driver, err := r.dialect.migrateDriver(r.db)
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s/%s", strings.TrimRight(dir, "/"), r.dialect.name),
		r.dialect.name,
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

const itemColumns = `id, cart_id, name, description, image, price, quantity, created_at, updated_at`

func (r *SQLRepository) FindCartByID(ctx context.Context, id string) (*domain.Cart, error) {
	var cart domain.Cart
	var created, updated sqlTime
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT id, created_at, updated_at FROM carts WHERE id = ?`), id).
		Scan(&cart.ID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart by id: %w", err)
	}
	cart.CreatedAt, cart.UpdatedAt = created.Time, updated.Time
	return &cart, nil
}

func (r *SQLRepository) CreateCart(ctx context.Context, id string) (*domain.Cart, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		r.rebind(`INSERT INTO carts (id, created_at, updated_at) VALUES (?, ?, ?)`),
		id, now, now)
	if err != nil {
		if r.dialect.uniqueViolation(err) {
			return nil, ErrCartExists
		}
		return nil, fmt.Errorf("insert cart: %w", err)
	}
	return &domain.Cart{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *SQLRepository) UpsertItem(ctx context.Context, item domain.CartItem, incrementBy int64) (domain.CartItem, error) {
	now := time.Now().UTC()
	query := `INSERT INTO cart_items (` + itemColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT (id, cart_id) DO UPDATE
	          SET quantity = cart_items.quantity + excluded.quantity, updated_at = excluded.updated_at
	          RETURNING ` + itemColumns

	row := r.db.QueryRowContext(ctx, r.rebind(query),
		item.ID,
		item.CartID,
		item.Name,
		nullString(item.Description),
		nullString(item.Image),
		item.Price,
		incrementBy,
		now,
		now)

	saved, err := scanItem(row)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("upsert item: %w", err)
	}
	return saved, nil
}

func (r *SQLRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID string, delta int64) (domain.CartItem, error) {
	query := `UPDATE cart_items SET quantity = quantity + ?, updated_at = ?
	          WHERE id = ? AND cart_id = ?
	          RETURNING ` + itemColumns

	row := r.db.QueryRowContext(ctx, r.rebind(query), delta, time.Now().UTC(), itemID, cartID)
	saved, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CartItem{}, ErrItemNotFound
	}
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("update item quantity: %w", err)
	}
	return saved, nil
}

func (r *SQLRepository) DecrementItem(ctx context.Context, cartID, itemID string) (domain.CartItem, bool, error) {
	decrement := r.rebind(`UPDATE cart_items SET quantity = quantity - 1, updated_at = ?
	          WHERE id = ? AND cart_id = ? AND quantity > 0
	          RETURNING ` + itemColumns)
	remove := r.rebind(`DELETE FROM cart_items
	          WHERE id = ? AND cart_id = ? AND quantity <= 0
	          RETURNING ` + itemColumns)

	for attempt := 0; attempt < maxDecrementAttempts; attempt++ {
		saved, err := scanItem(r.db.QueryRowContext(ctx, decrement, time.Now().UTC(), itemID, cartID))
		if err == nil {
			return saved, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, false, fmt.Errorf("decrement item: %w", err)
		}

		removed, err := scanItem(r.db.QueryRowContext(ctx, remove, itemID, cartID))
		if err == nil {
			return removed, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, false, fmt.Errorf("delete drained item: %w", err)
		}

		exists, err := r.itemExists(ctx, cartID, itemID)
		if err != nil {
			return domain.CartItem{}, false, err
		}
		if !exists {
			return domain.CartItem{}, false, ErrItemNotFound
		}
	}
	return domain.CartItem{}, false, ErrContention
}

func (r *SQLRepository) itemExists(ctx context.Context, cartID, itemID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT 1 FROM cart_items WHERE id = ? AND cart_id = ?`), itemID, cartID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query item: %w", err)
	}
	return true, nil
}

func (r *SQLRepository) DeleteItem(ctx context.Context, cartID, itemID string) error {
	result, err := r.db.ExecContext(ctx,
		r.rebind(`DELETE FROM cart_items WHERE id = ? AND cart_id = ?`), itemID, cartID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *SQLRepository) ListItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	query := `SELECT ` + itemColumns + ` FROM cart_items WHERE cart_id = ? ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), cartID)
	if err != nil {
		return nil, fmt.Errorf("query items by cart id: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close(_ context.Context) error {
	return r.db.Close()
}

func (r *SQLRepository) rebind(query string) string {
	if !r.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (domain.CartItem, error) {
	var item domain.CartItem
	var description, image sql.NullString
	var created, updated sqlTime
	err := s.Scan(
		&item.ID,
		&item.CartID,
		&item.Name,
		&description,
		&image,
		&item.Price,
		&item.Quantity,
		&created,
		&updated,
	)
	if err != nil {
		return domain.CartItem{}, err
	}
	if description.Valid {
		item.Description = &description.String
	}
	if image.Valid {
		item.Image = &image.String
	}
	item.CreatedAt, item.UpdatedAt = created.Time, updated.Time
	return item, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// sqlTime scans timestamps from drivers that return either time.Time or text.
type sqlTime struct {
	Time time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	ClinicIDKey contextKey = "clinic_id"
	DBConnKey   contextKey = "db_conn"
	DBTxKey     contextKey = "db_tx"
)

// ClinicHeader selects the clinic schema when the token carries no clinic claim.
const ClinicHeader = "X-Clinic-ID"

const SharedSchema = "shared"

var clinicIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

// ValidClinicID reports whether id can be used as a schema suffix.
func ValidClinicID(id string) bool {
	return clinicIDPattern.MatchString(id)
}

// ClinicSchema returns the schema name holding the clinic's tables.
func ClinicSchema(clinicID string) string {
	return "clinic_" + clinicID
}

// ClinicMiddleware pins one pooled connection to the request with its
// search_path set to the clinic schema. Repositories pick it up through
// ConnFromContext.
func ClinicMiddleware(pool *pgxpool.Pool, defaultClinic string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clinicID := extractClinicID(c, defaultClinic)

			if !ValidClinicID(clinicID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer release(conn)

			if err := setSearchPath(ctx, conn, clinicID); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "clinic resolution failed")
			}

			ctx = context.WithValue(ctx, ClinicIDKey, clinicID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("clinic_id", clinicID)

			return next(c)
		}
	}
}

func setSearchPath(ctx context.Context, conn *pgxpool.Conn, clinicID string) error {
	_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, %s, public", ClinicSchema(clinicID), SharedSchema))
	return err
}

// release resets the search_path so the next borrower starts from the default.
func release(conn *pgxpool.Conn) {
	_, _ = conn.Exec(context.Background(), "RESET search_path")
	conn.Release()
}

// WithinClinic runs fn with a connection pinned to the clinic schema, the
// way ClinicMiddleware does for requests. Background jobs use it.
func WithinClinic(ctx context.Context, pool *pgxpool.Pool, clinicID string, fn func(ctx context.Context) error) error {
	if !ValidClinicID(clinicID) {
		return fmt.Errorf("invalid clinic identifier: %s", clinicID)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer release(conn)

	if err := setSearchPath(ctx, conn, clinicID); err != nil {
		return fmt.Errorf("set search_path for %s: %w", clinicID, err)
	}
	return fn(WithConn(WithClinic(ctx, clinicID), conn))
}

func extractClinicID(c echo.Context, defaultClinic string) string {
	if cid, ok := c.Get("jwt_clinic_id").(string); ok && cid != "" {
		return strings.ToLower(cid)
	}
	if cid := c.Request().Header.Get(ClinicHeader); cid != "" {
		return strings.ToLower(cid)
	}
	if cid := c.QueryParam("clinic"); cid != "" {
		return strings.ToLower(cid)
	}
	return defaultClinic
}

// ExtractClinicID exposes the clinic resolution order to routes that run
// outside ClinicMiddleware, such as the websocket endpoint.
func ExtractClinicID(c echo.Context, defaultClinic string) string {
	return extractClinicID(c, defaultClinic)
}

// ConnFromContext retrieves the clinic-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// ClinicFromContext retrieves the clinic ID from context.
func ClinicFromContext(ctx context.Context) string {
	cid, _ := ctx.Value(ClinicIDKey).(string)
	return cid
}

// WithClinic returns a context scoped to clinicID.
func WithClinic(ctx context.Context, clinicID string) context.Context {
	return context.WithValue(ctx, ClinicIDKey, clinicID)
}

// WithConn stores a clinic-scoped connection in the context.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, DBConnKey, conn)
}

// CreateClinicSchema creates the schema for a clinic and runs the clinic
// migrations against it. If migrationsDir is empty, migrations are skipped.
func CreateClinicSchema(ctx context.Context, pool *pgxpool.Pool, clinicID string, migrationsDir string) error {
	if !ValidClinicID(clinicID) {
		return fmt.Errorf("invalid clinic identifier: %s", clinicID)
	}

	schema := ClinicSchema(clinicID)

	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}

// ListClinics returns the ids of every clinic schema in the database.
func ListClinics(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name LIKE 'clinic\_%' ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list clinic schemas: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		ids = append(ids, strings.TrimPrefix(name, "clinic_"))
	}
	return ids, rows.Err()
}

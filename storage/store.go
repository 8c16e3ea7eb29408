// Package storage persists users, grievances and notifications through gorm.
package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"grievance-management-api/apperr"
)

// Store implements every repository the services depend on over one
// shared *gorm.DB. The handle is owned by the caller.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Ping checks the connection for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return translateError(err, "database")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return translateError(err, "database")
	}
	return nil
}

const (
	mysqlDuplicateEntry   = 1062
	mysqlRowIsReferenced  = 1451
	mysqlNoReferencedRow  = 1452
	mysqlRowIsReferenced2 = 1217
	mysqlNoReferencedRow2 = 1216
)

// translateError maps driver and gorm errors onto the apperr taxonomy.
// entity names the record in NotFound messages.
func translateError(err error, entity string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindUpstreamStoreUnavailable, "Request cancelled before the database answered", err)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(entity + " not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.KindConflict, "Record already exists", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.Wrap(apperr.KindConflict, "Record is still referenced or references a missing record", err)
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return apperr.Wrap(apperr.KindConflict, "Record already exists", err)
		case mysqlRowIsReferenced, mysqlRowIsReferenced2:
			return apperr.Wrap(apperr.KindConflict, "Record is still referenced", err)
		case mysqlNoReferencedRow, mysqlNoReferencedRow2:
			return apperr.Wrap(apperr.KindConflict, "Referenced record does not exist", err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return apperr.Wrap(apperr.KindConflict, "Record already exists", err)
		case pgErr.Code == "23503" && strings.HasPrefix(pgErr.Message, "update or delete"):
			return apperr.Wrap(apperr.KindConflict, "Record is still referenced", err)
		case pgErr.Code == "23503":
			return apperr.Wrap(apperr.KindConflict, "Referenced record does not exist", err)
		case strings.HasPrefix(pgErr.Code, "08"):
			return apperr.Wrap(apperr.KindUpstreamStoreUnavailable, "Database unavailable", err)
		}
	}

	if isConnectionError(err) {
		return apperr.Wrap(apperr.KindUpstreamStoreUnavailable, "Database unavailable", err)
	}

	log.Error().Err(err).Str("entity", entity).Msg("unexpected database error")
	return apperr.Internal("Database operation failed", err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func likePattern(s string) string {
	return "%" + escapeLike(strings.ToLower(strings.TrimSpace(s))) + "%"
}

func normalizePage(page, limit, defaultLimit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func orderDirection(order string) string {
	if strings.EqualFold(order, "asc") {
		return "ASC"
	}
	return "DESC"
}

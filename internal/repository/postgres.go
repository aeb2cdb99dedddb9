package repository

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/lib/pq"
	"github.com/opensource-finance/credbud/internal/domain"
)

// postgresDSN builds a postgres:// URL so credentials with special
// characters survive escaping.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "credbud"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/" + dbname,
		RawQuery: url.Values{"sslmode": {sslmode}, "application_name": {"credbud"}}.Encode(),
	}
	switch {
	case cfg.PostgresUser != "" && cfg.PostgresPassword != "":
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	case cfg.PostgresUser != "":
		u.User = url.User(cfg.PostgresUser)
	}
	return u.String()
}

// 23505 is unique_violation.
func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Package domain defines the core interfaces and types for CredBud.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Every user-owned record is read and written through its userID;
// records belonging to another user are reported as not found.
type Repository interface {
	// User profiles
	SaveUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Loan applications
	SaveLoan(ctx context.Context, userID string, app *LoanApplication) error
	UpdateLoan(ctx context.Context, userID string, app *LoanApplication) error
	GetLoan(ctx context.Context, userID string, loanID string) (*LoanApplication, error)
	ListLoans(ctx context.Context, userID string, filter LoanFilter) ([]*LoanApplication, error)
	DeleteLoan(ctx context.Context, userID string, loanID string) error
	LoanStatistics(ctx context.Context, userID string) (*LoanStats, error)
	CountLoansSince(ctx context.Context, userID string, since time.Time) (int, error)

	// Bank statements
	SaveStatement(ctx context.Context, userID string, stmt *Statement) error
	GetStatement(ctx context.Context, userID string, stmtID string) (*Statement, error)
	ListStatements(ctx context.Context, userID string) ([]*Statement, error)

	// Financial behaviour, one row per user
	UpsertBehavior(ctx context.Context, userID string, fb *FinancialBehavior) error
	GetBehavior(ctx context.Context, userID string) (*FinancialBehavior, error)

	// Policy rules are global
	SavePolicyRule(ctx context.Context, rule *PolicyRule) error
	ListPolicyRules(ctx context.Context) ([]*PolicyRule, error)
	DeletePolicyRule(ctx context.Context, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver" json:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath" json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgresHost" json:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort" json:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser" json:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword" json:"-"`
	PostgresDB       string `mapstructure:"postgresDB" json:"postgresDB"`
	PostgresSSLMode  string `mapstructure:"postgresSSLMode" json:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns" json:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime" json:"connMaxLifetime"`
}

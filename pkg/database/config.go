package database

import (
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql/schema"

	"github.com/Alijeyrad/tabib_backend/config"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	defaultPort         = 5432
	defaultSSLMode      = "disable"
	defaultMaxOpen      = 25
	defaultMaxIdle      = 5
	defaultConnLifetime = 5 * time.Minute
)

// Conn describes one postgres database and how its pool is sized.
type Conn struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpen      int
	MaxIdle      int
	ConnLifetime time.Duration

	// SafeMode keeps migrations additive: no column or index is dropped.
	SafeMode bool
}

func ConnFrom(c config.DatabaseConfig) Conn {
	conn := Conn{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Name:     c.DBName,
		SSLMode:  c.SSLMode,
		MaxOpen:  c.Pool.MaxOpenConns,
		MaxIdle:  c.Pool.MaxIdleConns,
		SafeMode: c.Migrations.SafeMode,
	}
	if c.Pool.ConnMaxLifetimeMin > 0 {
		conn.ConnLifetime = time.Duration(c.Pool.ConnMaxLifetimeMin) * time.Minute
	}
	return conn.withDefaults()
}

func (c Conn) withDefaults() Conn {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.SSLMode == "" {
		c.SSLMode = defaultSSLMode
	}
	if c.MaxOpen <= 0 {
		c.MaxOpen = defaultMaxOpen
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = defaultMaxIdle
	}
	if c.ConnLifetime <= 0 {
		c.ConnLifetime = defaultConnLifetime
	}
	return c
}

// DSN is the lib/pq keyword/value connection string.
func (c Conn) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// MigrateOptions lets a non-safe migration drop what the table
// definitions no longer declare.
func (c Conn) MigrateOptions() []schema.MigrateOption {
	if c.SafeMode {
		return nil
	}
	return []schema.MigrateOption{schema.WithDropColumn(true), schema.WithDropIndex(true)}
}

func NewDSN(c config.DatabaseConfig) string {
	return ConnFrom(c).DSN()
}

// IsMemory reports whether the in-process store is selected.
func IsMemory(c config.DatabaseConfig) bool {
	return c.Driver == DriverMemory
}

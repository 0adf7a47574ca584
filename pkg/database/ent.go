package database

import (
	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/Alijeyrad/tabib_backend/config"
)

// NewDriver opens postgres and wraps it in ent's SQL driver, the handle the
// store builds and runs its queries on.
func NewDriver(cfg config.DatabaseConfig) (*entsql.Driver, error) {
	db, err := open(ConnFrom(cfg))
	if err != nil {
		return nil, err
	}
	return entsql.OpenDB(dialect.Postgres, db), nil
}

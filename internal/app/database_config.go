package app

import (
	"strings"

	"github.com/charlesng35/attachvault/internal/database"
)

// DatabaseOptions converts the application database configuration into the
// database package representation.
func (c DatabaseConfig) DatabaseOptions() database.Config {
	return database.Config{
		Driver:   strings.TrimSpace(c.Driver),
		Path:     strings.TrimSpace(c.Path),
		DSN:      strings.TrimSpace(c.DSN),
		Host:     strings.TrimSpace(c.Postgres.Host),
		Port:     c.Postgres.Port,
		Name:     strings.TrimSpace(c.Postgres.Database),
		User:     strings.TrimSpace(c.Postgres.Username),
		Password: c.Postgres.Password,
	}
}

package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "vault",
		Password: "secret",
		Name:     "attachments",
		Host:     "db.internal",
		Port:     5433,
	})
	require.NoError(t, err)
	require.Equal(t, "host=db.internal port=5433 user=vault dbname=attachments password=secret sslmode=disable", dsn)
}

func TestBuildPostgresDSNDefaultsAndOptions(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User: "vault",
		Name: "attachments",
		Options: map[string]string{
			"sslmode":         "require",
			"connect_timeout": "5",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "host=localhost port=5432 user=vault dbname=attachments connect_timeout=5 sslmode=require", dsn)
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{User: "vault"})
	require.Error(t, err)

	_, err = buildPostgresDSN(Config{Name: "attachments"})
	require.Error(t, err)
}

func TestBuildPostgresDSNPassthrough(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{DSN: "postgres://u:p@host/db"})
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@host/db", dsn)
}

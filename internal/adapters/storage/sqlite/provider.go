// Package sqlite provides the SQLite version storage adapter.
package sqlite

import (
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage/sqldb"
)

// Provider implements ports.VersionStorage using SQLite.
// It wraps the sqldb implementation.
type Provider struct {
	*sqldb.Store
}

// NewProvider creates a new SQLite storage provider.
func NewProvider(path string) (*Provider, error) {
	store, err := sqldb.NewSQLite(path)
	if err != nil {
		return nil, err
	}

	return &Provider{
		Store: store,
	}, nil
}

// Ensure Provider implements ports.VersionStorage at compile time.
var _ ports.VersionStorage = (*Provider)(nil)

package app

import (
	"strings"

	"github.com/charlesng35/blotter/internal/database"
)

// StoreConfig resolves the driver alias and picks the credentials block that
// matches it. An empty driver means sqlite; unknown drivers are passed through
// for database.Open to reject.
func (c DatabaseConfig) StoreConfig() database.Config {
	out := database.Config{
		Driver:    strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:      strings.TrimSpace(c.Path),
		DSN:       strings.TrimSpace(c.DSN),
		SlowQuery: c.SlowQuery,
	}

	var server *DBAuthConfig
	switch out.Driver {
	case "", "sqlite":
		out.Driver = "sqlite"
	case "postgres", "postgresql":
		out.Driver = "postgres"
		server = &c.Postgres
	case "mysql":
		server = &c.MySQL
	}

	if server != nil {
		out.Host = strings.TrimSpace(server.Host)
		out.Port = server.Port
		out.Name = strings.TrimSpace(server.Database)
		out.User = strings.TrimSpace(server.Username)
		out.Password = server.Password
	}
	return out
}

// Shared reports whether the record store is reachable by other replicas,
// which decides if SQL-backed rate counters are worth using.
func (c DatabaseConfig) Shared() bool {
	return c.StoreConfig().Driver != "sqlite"
}

package store

import "strings"

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// come as URLs (postgres://...) or key=value strings containing host=;
// everything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

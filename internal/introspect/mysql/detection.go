package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// detectFlavor reports "mariadb" or "tidb" for servers speaking the MySQL
// protocol that are not MySQL itself, and the server version.
func detectFlavor(ctx context.Context, db *sql.DB) (string, string, error) {
	var varName, comment string

	err := db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'version_comment'").Scan(&varName, &comment)
	if err != nil {
		return "", "", fmt.Errorf("introspect: detect server: %w", err)
	}

	comment = strings.ToLower(comment)

	switch {
	case strings.Contains(comment, "mariadb"):
		return "mariadb", getVersion(ctx, db), nil
	case strings.Contains(comment, "tidb"):
		return "tidb", getVersion(ctx, db), nil
	default:
		return "", getVersion(ctx, db), nil
	}
}

func getVersion(ctx context.Context, db *sql.DB) string {
	var version string
	_ = db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version)
	if idx := strings.Index(version, "-"); idx > 0 {
		version = version[:idx]
	}
	return version
}

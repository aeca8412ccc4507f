package datasource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/logging"
)

// ErrorMessage renders an engine error for a diagnostic. PostgreSQL errors
// keep their message, detail, hint and SQLSTATE without the driver's wrapping;
// everything else is passed through the log sanitizer.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		var sb strings.Builder
		sb.WriteString(pgErr.Message)
		if pgErr.Detail != "" {
			sb.WriteString(": ")
			sb.WriteString(pgErr.Detail)
		}
		if pgErr.Hint != "" {
			sb.WriteString(" (hint: ")
			sb.WriteString(pgErr.Hint)
			sb.WriteString(")")
		}
		fmt.Fprintf(&sb, " (SQLSTATE %s)", pgErr.Code)
		return sb.String()
	}

	return logging.SanitizeError(err)
}

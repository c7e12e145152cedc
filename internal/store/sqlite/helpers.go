package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// requireRowsAffected returns a NotFound apierr if res reports zero rows
// changed, the same "did the WHERE id = ? match anything" check every
// UPDATE/DELETE in this package needs.
func requireRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return apierr.NotFoundf("%s %q not found", kind, id)
	}
	return nil
}

// orderByClause builds an ORDER BY list from sortKeys, restricted to
// allowed columns, always breaking ties on id so pagination stays stable
// across pages (mirrors the original's sort_keys + ['id'] tiebreak). An
// unrecognized sort key fails with apierr.Invalid before any query runs,
// rather than being silently dropped. No sort keys at all falls back to the
// default, created_at DESC; explicit sort keys sort ASC unless dir asks for
// DESC.
func orderByClause(sortKeys []string, dir types.SortDir, allowed map[string]bool) (string, error) {
	sqlDir := "ASC"
	if dir == types.SortDesc || (dir == "" && len(sortKeys) == 0) {
		sqlDir = "DESC"
	}

	cols := make([]string, 0, len(sortKeys)+1)
	if len(sortKeys) == 0 {
		cols = append(cols, "created_at")
	}
	for _, k := range sortKeys {
		if !allowed[k] {
			return "", apierr.Invalidf("invalid sort key %q", k)
		}
		cols = append(cols, k)
	}

	seenID := false
	for _, c := range cols {
		if c == "id" {
			seenID = true
		}
	}
	if !seenID {
		cols = append(cols, "id")
	}

	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " " + sqlDir
	}
	return strings.Join(parts, ", "), nil
}

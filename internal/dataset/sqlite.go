package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"

	_ "modernc.org/sqlite"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadSQLite reads every row of table from the SQLite database at dbPath.
// Column values are converted to their string form. NULLs are rejected.
func LoadSQLite(ctx context.Context, dbPath, table string) (*Dataset, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return querySQL(ctx, db, `SELECT * FROM "`+table+`"`)
}

func querySQL(ctx context.Context, db *sql.DB, query string) (*Dataset, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records [][]string
	raw := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(records)+1, err)
		}
		rec := make([]string, len(columns))
		for i, v := range raw {
			s, err := sqlString(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", len(records)+1, columns[i], err)
			}
			rec[i] = s
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return New(columns, records)
}

func sqlString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", fmt.Errorf("NULL value")
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return fmt.Sprint(x), nil
	}
}

package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront-orders/database"
)

// dbTime scans a timestamp column regardless of whether the driver hands
// back a time.Time (mysql with parseTime) or text (sqlite).
type dbTime struct {
	time.Time
}

var timeLayouts = []string{
	database.TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return fmt.Errorf("repository: cannot scan %T into timestamp", value)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("repository: parse timestamp %q", s)
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullIntPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

// parseImages reads the catalog images column: a JSON array of URLs, or a
// comma-separated list for rows written by older admin tooling.
func parseImages(ns sql.NullString) []string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return []string{}
	}
	var images []string
	if err := json.Unmarshal([]byte(ns.String), &images); err == nil {
		if images == nil {
			return []string{}
		}
		return images
	}
	out := []string{}
	for _, part := range strings.Split(ns.String, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// internal/db/seed.go
package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// demoUsers is the demo directory: name and tag set. Tags are fixed rather
// than random so segment resolution is reproducible across environments.
var demoUsers = []struct {
	name string
	tags []string
}{
	{"Ray", []string{"vip", "tw"}},
	{"Alice", []string{"vip"}},
	{"Bob", []string{"tw"}},
	{"Carol", []string{"vip", "jp"}},
	{"David", nil},
	{"Eve", []string{"vip", "tw"}},
	{"Frank", []string{"jp"}},
	{"Grace", []string{"vip"}},
	{"Heidi", []string{"tw"}},
	{"Ivan", nil},
	{"Judy", []string{"vip", "tw", "jp"}},
	{"Mallory", nil},
	{"Niaj", []string{"jp"}},
	{"Olivia", []string{"vip"}},
	{"Peggy", []string{"tw"}},
	{"Rupert", nil},
	{"Sybil", []string{"vip", "jp"}},
	{"Trent", nil},
	{"Victor", []string{"tw"}},
	{"Wendy", []string{"vip"}},
}

// SeedUsersIfEmpty populates the demo user directory when it has no rows.
func SeedUsersIfEmpty(conn *sqlx.DB) error {
	var count int
	if err := conn.Get(&count, `SELECT COUNT(*) FROM users`); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, u := range demoUsers {
		email := strings.ToLower(u.name) + "@example.com"
		tags := u.tags
		if tags == nil {
			tags = []string{}
		}
		if _, err := conn.Exec(
			`INSERT INTO users (name, email, tags) VALUES ($1, $2, $3)`,
			u.name, email, pq.StringArray(tags),
		); err != nil {
			return fmt.Errorf("seed user %s: %w", u.name, err)
		}
	}
	return nil
}

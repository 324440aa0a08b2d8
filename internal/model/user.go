// internal/model/user.go
package model

import "github.com/lib/pq"

// User is a recipient from the user directory. The directory is owned by an
// external collaborator; the engine never writes user rows.
type User struct {
	ID    int64          `db:"id" json:"id"`
	Name  string         `db:"name" json:"name"`
	Email string         `db:"email" json:"email"`
	Tags  pq.StringArray `db:"tags" json:"tags"`
}

// HasTag reports whether the user carries the given (already normalized) tag.
func (u *User) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

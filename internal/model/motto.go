// Package model defines the data structures used throughout the application.
package model

import "time"

// AnonymousNickname is stored when a submitter leaves the nickname blank.
const AnonymousNickname = "anonymous"

// Motto is one submitted text in the public feed.
//
// ID, Number and CreatedAt are assigned by the repository at insert time and
// never change afterwards. Number is the public "#N" handle: it strictly
// increases with every insert and is never reused, though gaps are allowed.
//
// The `db` tags are read by scany when scanning Postgres rows.
type Motto struct {
	ID        string    `json:"id"         db:"id"`
	Number    int64     `json:"number"     db:"number"`
	Nickname  string    `json:"nickname"   db:"nickname"`
	Text      string    `json:"motto_text" db:"motto_text"`
	Timezone  *string   `json:"timezone"   db:"timezone"` // client-reported IANA zone, stored verbatim
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

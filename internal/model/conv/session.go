package conv

import "time"

// Session captures one continuous conversation. A session owns exactly one
// transcript and stops accepting turns once it goes inactive.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

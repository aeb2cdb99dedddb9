package domain

import "time"

// User is the profile of a loan applicant.
// ID is issued by the upstream identity provider.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone,omitempty"`
	CityTier  int       `json:"cityTier"`
	CreatedAt time.Time `json:"createdAt"`
}

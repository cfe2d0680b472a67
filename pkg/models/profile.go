package models

import "time"

// Profile is a persisted browser user-data directory. Sessions created
// with a profile reuse its cookies and local storage, so a prior login can
// survive browser restarts.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	DataPath  string    `json:"-"`
}

// CreateProfileRequest is the payload for creating a profile.
type CreateProfileRequest struct {
	Name string `json:"name,omitempty"`
}

package models

import "time"

// UserProfile is the persisted directory record for one user. Presence is
// tracked separately by the registry; the directory only stores what the
// UI needs to render an offline or ringing contact.
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UpdateProfileRequest is the body of PUT /api/users/me.
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName" binding:"required,min=1,max=64"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

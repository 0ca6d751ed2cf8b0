package model

// ProfileSummary is the public face of a user attached to outgoing
// notifications.  It never takes part in a reservation decision.
type ProfileSummary struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

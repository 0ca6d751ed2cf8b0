package model

import "time"

// User represents a row of the `users` table as far as this service
// needs it: enough to render a player in notifications and rosters.
// Accounts, credentials and roles live in the identity service; the
// user id is the JWT subject it issues.
//
// Fields:
//  ID          – users.id, the stable user identifier.
//  DisplayName – users.display_name, shown to other players.
//  AvatarURL   – users.avatar_url, optional.
//  CreatedAt   – users.created_at.
//  UpdatedAt   – users.updated_at.
type User struct {
	ID          string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Summary returns the public profile of the user.
func (u User) Summary() ProfileSummary {
	return ProfileSummary{UserID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

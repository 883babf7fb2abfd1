package model

// User is a SoundCloud account.
type User struct {
	ID           int64
	Username     string
	FullName     string
	AvatarURL    string
	PermalinkURL string

	TrackCount     int
	PlaylistCount  int
	FollowersCount int
}

// DisplayName returns the full name when set, otherwise the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

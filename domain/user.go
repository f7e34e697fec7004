// Package domain contains core concepts of the messaging system.
// No runtime, network, or UI logic should be added here.
package domain

// User is a registered account. PasswordHash is opaque to everything
// except the auth package.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Friends      []FriendLink
}

// FriendLink is a denormalized pointer to a peer and the chat shared
// with that peer. It is maintained in lockstep with chat creation.
type FriendLink struct {
	PeerEmail string
	ChatID    string
}

// AddFriend appends a link unless an equal one is already present.
// Adding the same link twice must be a no-op, not a duplicate entry.
func (u *User) AddFriend(link FriendLink) bool {
	for _, f := range u.Friends {
		if f.PeerEmail == link.PeerEmail && f.ChatID == link.ChatID {
			return false
		}
	}
	u.Friends = append(u.Friends, link)
	return true
}

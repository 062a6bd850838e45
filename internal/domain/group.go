package domain

import "time"

// Group is a named set of members that share expenses. The creator is always
// the first member. Groups are never deleted; the member set only grows.
type Group struct {
	ID        GroupID
	Name      string
	Creator   Address
	Members   []Address
	CreatedAt time.Time
}

// IsMember reports whether addr belongs to the group.
func (g Group) IsMember(addr Address) bool {
	for _, m := range g.Members {
		if m == addr {
			return true
		}
	}
	return false
}

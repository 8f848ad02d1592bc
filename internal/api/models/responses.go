package models

import (
	"time"

	"github.com/nkkko/verse/pkg/proto"
)

// Status is the daemon's view of the session
type Status struct {
	SignedIn bool   `json:"signed_in"`
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	Realtime RealtimeStatus `json:"realtime"`

	LikedPoems      int `json:"liked_poems"`
	BookmarkedPoems int `json:"bookmarked_poems"`
	ReadBooks       int `json:"read_books"`

	Friends         int  `json:"friends"`
	FriendRequests  int  `json:"friend_requests"`
	SentRequests    int  `json:"sent_requests"`
	PendingActions  int  `json:"pending_actions"`
	ActionsInFlight bool `json:"actions_in_flight"`
}

// RealtimeStatus describes the push channel
type RealtimeStatus struct {
	State             string `json:"state"`
	Connected         bool   `json:"connected"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
}

// MembershipResponse reports an entity's membership after an action
type MembershipResponse struct {
	ID     int64  `json:"id"`
	Set    string `json:"set"`
	Member bool   `json:"member"`
}

// FriendsResponse lists the cached friend state
type FriendsResponse struct {
	Friends      []*proto.Friend        `json:"friends"`
	Requests     []*proto.FriendRequest `json:"requests"`
	SentRequests []*proto.FriendRequest `json:"sent_requests"`
}

// NotificationResponse is the current user-facing notification
type NotificationResponse struct {
	ID        string    `json:"id,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

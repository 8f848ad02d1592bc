package proto

import (
	"encoding/json"
	"time"
)

// Topic identifies a class of push-channel event
type Topic string

const (
	TopicFriendRequestReceived Topic = "friend_request_received"
	TopicFriendRequestUpdate   Topic = "friend_request_update"
	TopicFriendRequestAccepted Topic = "friend_request_accepted"
	TopicFriendRemoved         Topic = "friend_removed"

	// TopicPing is the outbound liveness frame
	TopicPing Topic = "ping"

	// TopicConnectionExhausted is raised locally when the reconnect budget runs out.
	// The server never sends it.
	TopicConnectionExhausted Topic = "connection_exhausted"
)

// FriendTopics lists the push topics that invalidate friend state
var FriendTopics = []Topic{
	TopicFriendRequestReceived,
	TopicFriendRequestUpdate,
	TopicFriendRequestAccepted,
	TopicFriendRemoved,
}

// Envelope is the frame exchanged over the push channel
type Envelope struct {
	Type    Topic           `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// User is the authenticated account
type User struct {
	Id           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	RoleId       int64  `json:"role_id"`
	ProfileImage string `json:"profile_image,omitempty"`
	IsPrivate    bool   `json:"is_private,omitempty"`
}

// Poem is a single poem as returned by the API
type Poem struct {
	Id        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	Slug      string    `json:"slug"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	LikeCount int64     `json:"like_count,omitempty"`
}

// Book is a single book as returned by the API
type Book struct {
	Id        int64     `json:"id"`
	Name      string    `json:"name"`
	Author    string    `json:"author"`
	Slug      string    `json:"slug"`
	Image     string    `json:"image"`
	Page      int       `json:"page"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// Friend is an accepted friendship seen from the current user
type Friend struct {
	FriendshipId int64     `json:"friendship_id"`
	UserId       int64     `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	RoleId       int64     `json:"role_id"`
	SinceDate    time.Time `json:"since_date"`
}

// FriendRequestStatus is the lifecycle state of a friend request
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a pending or resolved friend request
type FriendRequest struct {
	Id        int64               `json:"id"`
	UserId    int64               `json:"user_id"`
	FriendId  int64               `json:"friend_id"`
	Status    FriendRequestStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	User      User                `json:"user"`
	Friend    *User               `json:"friend,omitempty"`
}

// PaginationMeta describes a page of results
type PaginationMeta struct {
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
	CurrentPage int `json:"current_page,omitempty"`
	PerPage     int `json:"per_page,omitempty"`
}

// PoemPage is a paginated poem listing
type PoemPage struct {
	Poems []*Poem        `json:"poems"`
	Meta  PaginationMeta `json:"meta"`
}

// MessageResponse is the body of most mutation responses
type MessageResponse struct {
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the structured error body returned by the API
type ErrorResponse struct {
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

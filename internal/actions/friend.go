package actions

import (
	"context"
	"strings"

	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/pkg/proto"
)

// FriendAPI is the part of the API client friend actions call
type FriendAPI interface {
	SendFriendRequest(ctx context.Context, username string) (*proto.MessageResponse, error)
	AcceptFriendRequest(ctx context.Context, requestID int64) (*proto.MessageResponse, error)
	RejectFriendRequest(ctx context.Context, requestID int64) (*proto.MessageResponse, error)
	CancelFriendRequest(ctx context.Context, requestID int64) (*proto.MessageResponse, error)
	RemoveFriend(ctx context.Context, friendshipID int64) (*proto.MessageResponse, error)
}

const (
	sendRequestFailed = "Arkadaşlık isteği gönderilemedi"
	sendRequestDone   = "Arkadaşlık isteği gönderildi"
)

// Lock kinds for friend actions
const (
	lockFriendRequest = "friend_request"
	lockFriendship    = "friendship"
)

// FriendActions sends and answers friend requests. They keep no local
// state; callers refresh their friend lists after a success.
type FriendActions struct {
	loadingFlag

	api         FriendAPI
	coordinator *Coordinator
}

// NewFriendActions creates friend actions
func NewFriendActions(api FriendAPI, coordinator *Coordinator) *FriendActions {
	return &FriendActions{api: api, coordinator: coordinator}
}

// SendRequest sends a friend request to username
func (a *FriendActions) SendRequest(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return &Error{Action: "send_friend_request", Message: sendRequestFailed, Err: ErrInvalidTarget}
	}
	return a.coordinator.Run(ctx, Mutation{
		Action:   "send_friend_request",
		LockKey:  "friend_request_to:" + strings.ToLower(username),
		Fallback: sendRequestFailed,
		Success:  sendRequestDone,
		Remote: func(ctx context.Context, _ bool) (*proto.MessageResponse, error) {
			return a.api.SendFriendRequest(ctx, username)
		},
		loading: &a.loadingFlag,
	})
}

// AcceptRequest accepts a received friend request
func (a *FriendActions) AcceptRequest(ctx context.Context, requestID int64) error {
	return a.run(ctx, "accept_friend_request", lockFriendRequest, requestID,
		"İstek kabul edilemedi", "Arkadaşlık isteği kabul edildi", a.api.AcceptFriendRequest)
}

// RejectRequest rejects a received friend request
func (a *FriendActions) RejectRequest(ctx context.Context, requestID int64) error {
	return a.run(ctx, "reject_friend_request", lockFriendRequest, requestID,
		"İstek reddedilemedi", "Arkadaşlık isteği reddedildi", a.api.RejectFriendRequest)
}

// CancelRequest withdraws a sent friend request
func (a *FriendActions) CancelRequest(ctx context.Context, requestID int64) error {
	return a.run(ctx, "cancel_friend_request", lockFriendRequest, requestID,
		"İstek iptal edilemedi", "Arkadaşlık isteği iptal edildi", a.api.CancelFriendRequest)
}

// RemoveFriend ends a friendship
func (a *FriendActions) RemoveFriend(ctx context.Context, friendshipID int64) error {
	return a.run(ctx, "remove_friend", lockFriendship, friendshipID,
		"Arkadaş çıkarılamadı", "Arkadaş çıkarıldı", a.api.RemoveFriend)
}

func (a *FriendActions) run(
	ctx context.Context,
	action, kind string,
	id int64,
	fallback, success string,
	call func(context.Context, int64) (*proto.MessageResponse, error),
) error {
	return a.coordinator.Run(ctx, Mutation{
		Action:   action,
		ID:       id,
		LockKey:  lockmanager.ResourcePath(kind, id),
		Fallback: fallback,
		Success:  success,
		Remote: func(ctx context.Context, _ bool) (*proto.MessageResponse, error) {
			return call(ctx, id)
		},
		loading: &a.loadingFlag,
	})
}

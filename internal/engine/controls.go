package engine

import (
	"context"

	"github.com/nkkko/verse/internal/api/models"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/internal/notifier"
	"github.com/nkkko/verse/internal/realtime"
	"github.com/nkkko/verse/pkg/proto"
)

// Status reports the session for the control surface
func (s *Session) Status() models.Status {
	status := models.Status{
		LikedPoems:      s.store.Liked.Len(),
		BookmarkedPoems: s.store.Bookmarked.Len(),
		ReadBooks:       s.store.Read.Len(),
		Friends:         len(s.FriendList.Friends()),
		FriendRequests:  len(s.FriendList.Requests()),
		SentRequests:    len(s.FriendList.SentRequests()),
		PendingActions:  s.locks.ActiveLocks(),
		ActionsInFlight: s.Poems.Loading() || s.Books.Loading() || s.FriendActions.Loading(),
	}

	if user := s.store.User(); user != nil {
		status.SignedIn = true
		status.UserID = user.Id
		status.Username = user.Username
	}

	if s.channel != nil {
		state := s.channel.State()
		status.Realtime = models.RealtimeStatus{
			State:             state.String(),
			Connected:         state == realtime.StateConnected,
			ReconnectAttempts: s.channel.Attempts(),
		}
	}
	return status
}

// LikePoem likes the poem with poemID
func (s *Session) LikePoem(ctx context.Context, poemID int64) error {
	return s.Poems.Like(ctx, &proto.Poem{Id: poemID})
}

// UnlikePoem removes the like from the poem with poemID
func (s *Session) UnlikePoem(ctx context.Context, poemID int64) error {
	return s.Poems.Unlike(ctx, &proto.Poem{Id: poemID})
}

// BookmarkPoem bookmarks the poem with poemID
func (s *Session) BookmarkPoem(ctx context.Context, poemID int64) error {
	return s.Poems.Bookmark(ctx, &proto.Poem{Id: poemID})
}

// UnbookmarkPoem removes the bookmark from the poem with poemID
func (s *Session) UnbookmarkPoem(ctx context.Context, poemID int64) error {
	return s.Poems.Unbookmark(ctx, &proto.Poem{Id: poemID})
}

// MarkBookRead marks the book with bookID as read
func (s *Session) MarkBookRead(ctx context.Context, bookID int64) error {
	return s.Books.MarkAsRead(ctx, &proto.Book{Id: bookID})
}

// MarkBookUnread marks the book with bookID as unread
func (s *Session) MarkBookUnread(ctx context.Context, bookID int64) error {
	return s.Books.MarkAsUnread(ctx, &proto.Book{Id: bookID})
}

// ToggleBookRead flips the read status of the book with bookID
func (s *Session) ToggleBookRead(ctx context.Context, bookID int64) error {
	return s.Books.ToggleReadStatus(ctx, &proto.Book{Id: bookID})
}

// IsMember reports whether id is in the named membership set
func (s *Session) IsMember(set string, id int64) bool {
	switch set {
	case membership.LikedPoems:
		return s.store.Liked.Has(id)
	case membership.BookmarkedPoems:
		return s.store.Bookmarked.Has(id)
	case membership.ReadBooks:
		return s.store.Read.Has(id)
	}
	return false
}

// SendFriendRequest sends a friend request and refreshes the sent list
func (s *Session) SendFriendRequest(ctx context.Context, username string) error {
	if err := s.FriendActions.SendRequest(ctx, username); err != nil {
		return err
	}
	_ = s.FriendList.FetchSentRequests(ctx)
	return nil
}

// AcceptFriendRequest accepts a received request and refreshes the
// affected lists
func (s *Session) AcceptFriendRequest(ctx context.Context, requestID int64) error {
	if err := s.FriendActions.AcceptRequest(ctx, requestID); err != nil {
		return err
	}
	_ = s.FriendList.FetchRequests(ctx)
	_ = s.FriendList.FetchFriends(ctx)
	return nil
}

// RejectFriendRequest rejects a received request
func (s *Session) RejectFriendRequest(ctx context.Context, requestID int64) error {
	if err := s.FriendActions.RejectRequest(ctx, requestID); err != nil {
		return err
	}
	_ = s.FriendList.FetchRequests(ctx)
	return nil
}

// CancelFriendRequest withdraws a sent request
func (s *Session) CancelFriendRequest(ctx context.Context, requestID int64) error {
	if err := s.FriendActions.CancelRequest(ctx, requestID); err != nil {
		return err
	}
	_ = s.FriendList.FetchSentRequests(ctx)
	return nil
}

// RemoveFriend ends a friendship
func (s *Session) RemoveFriend(ctx context.Context, friendshipID int64) error {
	if err := s.FriendActions.RemoveFriend(ctx, friendshipID); err != nil {
		return err
	}
	_ = s.FriendList.FetchFriends(ctx)
	return nil
}

// Friends returns the cached friend lists
func (s *Session) Friends() models.FriendsResponse {
	return models.FriendsResponse{
		Friends:      s.FriendList.Friends(),
		Requests:     s.FriendList.Requests(),
		SentRequests: s.FriendList.SentRequests(),
	}
}

// RefreshFriends refetches all friend lists
func (s *Session) RefreshFriends(ctx context.Context) error {
	if s.store.UserID() == 0 {
		return ErrNotSignedIn
	}
	return s.FriendList.FetchAll(ctx)
}

// Notification returns the current user-facing notification
func (s *Session) Notification() notifier.Notification {
	if s.notifier == nil {
		return notifier.Notification{}
	}
	return s.notifier.Current()
}

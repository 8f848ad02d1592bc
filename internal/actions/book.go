package actions

import (
	"context"

	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/pkg/proto"
)

// BookAPI is the part of the API client book actions call
type BookAPI interface {
	AddBookToReads(ctx context.Context, userID int64, book *proto.Book) (*proto.MessageResponse, error)
	RemoveBookFromReads(ctx context.Context, userID int64, book *proto.Book) (*proto.MessageResponse, error)
}

const readStatusFailed = "Okuma durumu güncellenemedi"

// BookActions manages the read status of books
type BookActions struct {
	loadingFlag

	api         BookAPI
	store       *membership.Store
	coordinator *Coordinator
}

// NewBookActions creates book actions over the given store
func NewBookActions(api BookAPI, store *membership.Store, coordinator *Coordinator) *BookActions {
	return &BookActions{api: api, store: store, coordinator: coordinator}
}

// ToggleReadStatus flips the book's membership in the read set
func (a *BookActions) ToggleReadStatus(ctx context.Context, book *proto.Book) error {
	return a.run(ctx, "toggle_read", book, true, false)
}

// MarkAsRead adds the book to the read set. Already-read books succeed
// without a remote call.
func (a *BookActions) MarkAsRead(ctx context.Context, book *proto.Book) error {
	return a.run(ctx, "mark_read", book, false, true)
}

// MarkAsUnread removes the book from the read set. Unread books succeed
// without a remote call.
func (a *BookActions) MarkAsUnread(ctx context.Context, book *proto.Book) error {
	return a.run(ctx, "mark_unread", book, false, false)
}

// IsRead reports whether the book is in the read set
func (a *BookActions) IsRead(bookID int64) bool {
	return a.store.Read.Has(bookID)
}

func (a *BookActions) run(ctx context.Context, action string, book *proto.Book, toggle, add bool) error {
	if book == nil || book.Id == 0 {
		return &Error{Action: action, Message: readStatusFailed, Err: ErrInvalidTarget}
	}
	userID := a.store.UserID()
	if userID == 0 {
		return &Error{Action: action, ID: book.Id, Message: readStatusFailed, Err: ErrNoUser}
	}

	return a.coordinator.Run(ctx, Mutation{
		Action:   action,
		ID:       book.Id,
		LockKey:  lockmanager.ResourcePath(a.store.Read.Name(), book.Id),
		Set:      a.store.Read,
		Add:      add,
		Toggle:   toggle,
		Fallback: readStatusFailed,
		Remote: func(ctx context.Context, add bool) (*proto.MessageResponse, error) {
			if add {
				return a.api.AddBookToReads(ctx, userID, book)
			}
			return a.api.RemoveBookFromReads(ctx, userID, book)
		},
		loading: &a.loadingFlag,
	})
}

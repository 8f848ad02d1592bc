package actions

import (
	"context"

	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/pkg/proto"
)

// PoemAPI is the part of the API client poem actions call
type PoemAPI interface {
	LikePoem(ctx context.Context, userID int64, poem *proto.Poem) (*proto.MessageResponse, error)
	UnlikePoem(ctx context.Context, userID int64, poem *proto.Poem) (*proto.MessageResponse, error)
	BookmarkPoem(ctx context.Context, userID int64, poem *proto.Poem) (*proto.MessageResponse, error)
	RemoveBookmark(ctx context.Context, userID int64, poem *proto.Poem) (*proto.MessageResponse, error)
}

const (
	likeFailed       = "Şiir beğenilemedi"
	unlikeFailed     = "Beğeni kaldırılamadı"
	bookmarkFailed   = "İşaretlenemedi"
	unbookmarkFailed = "İşaret kaldırılamadı"
)

// PoemActions likes and bookmarks poems
type PoemActions struct {
	loadingFlag

	api         PoemAPI
	store       *membership.Store
	coordinator *Coordinator
}

// NewPoemActions creates poem actions over the given store
func NewPoemActions(api PoemAPI, store *membership.Store, coordinator *Coordinator) *PoemActions {
	return &PoemActions{api: api, store: store, coordinator: coordinator}
}

// Like adds poem to the liked set
func (a *PoemActions) Like(ctx context.Context, poem *proto.Poem) error {
	return a.run(ctx, "like", poem, a.store.Liked, true, likeFailed)
}

// Unlike removes poem from the liked set
func (a *PoemActions) Unlike(ctx context.Context, poem *proto.Poem) error {
	return a.run(ctx, "unlike", poem, a.store.Liked, false, unlikeFailed)
}

// Bookmark adds poem to the bookmarked set
func (a *PoemActions) Bookmark(ctx context.Context, poem *proto.Poem) error {
	return a.run(ctx, "bookmark", poem, a.store.Bookmarked, true, bookmarkFailed)
}

// Unbookmark removes poem from the bookmarked set
func (a *PoemActions) Unbookmark(ctx context.Context, poem *proto.Poem) error {
	return a.run(ctx, "unbookmark", poem, a.store.Bookmarked, false, unbookmarkFailed)
}

// IsLiked reports whether the poem is in the liked set
func (a *PoemActions) IsLiked(poemID int64) bool {
	return a.store.Liked.Has(poemID)
}

// IsBookmarked reports whether the poem is in the bookmarked set
func (a *PoemActions) IsBookmarked(poemID int64) bool {
	return a.store.Bookmarked.Has(poemID)
}

func (a *PoemActions) run(ctx context.Context, action string, poem *proto.Poem, set *membership.Set, add bool, fallback string) error {
	if poem == nil || poem.Id == 0 {
		return &Error{Action: action, Message: fallback, Err: ErrInvalidTarget}
	}
	userID := a.store.UserID()
	if userID == 0 {
		return &Error{Action: action, ID: poem.Id, Message: fallback, Err: ErrNoUser}
	}

	return a.coordinator.Run(ctx, Mutation{
		Action:   action,
		ID:       poem.Id,
		LockKey:  lockmanager.ResourcePath(set.Name(), poem.Id),
		Set:      set,
		Add:      add,
		Fallback: fallback,
		Remote: func(ctx context.Context, add bool) (*proto.MessageResponse, error) {
			switch {
			case set == a.store.Liked && add:
				return a.api.LikePoem(ctx, userID, poem)
			case set == a.store.Liked:
				return a.api.UnlikePoem(ctx, userID, poem)
			case add:
				return a.api.BookmarkPoem(ctx, userID, poem)
			default:
				return a.api.RemoveBookmark(ctx, userID, poem)
			}
		},
		loading: &a.loadingFlag,
	})
}

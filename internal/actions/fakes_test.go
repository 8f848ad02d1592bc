package actions

import (
	"context"
	"sync"

	"github.com/nkkko/verse/pkg/proto"
)

// fakeAPI implements PoemAPI, BookAPI and FriendAPI, recording every call
type fakeAPI struct {
	mu    sync.Mutex
	calls []string
	err   error
	resp  *proto.MessageResponse

	// when set, calls block until released or their context ends
	release chan struct{}
	started chan string
}

func (f *fakeAPI) failWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeAPI) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) call(ctx context.Context, name string) (*proto.MessageResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	err, resp, release, started := f.err, f.resp, f.release, f.started
	f.mu.Unlock()

	if started != nil {
		started <- name
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &proto.MessageResponse{}
	}
	return resp, nil
}

func (f *fakeAPI) LikePoem(ctx context.Context, _ int64, _ *proto.Poem) (*proto.MessageResponse, error) {
	return f.call(ctx, "like")
}

func (f *fakeAPI) UnlikePoem(ctx context.Context, _ int64, _ *proto.Poem) (*proto.MessageResponse, error) {
	return f.call(ctx, "unlike")
}

func (f *fakeAPI) BookmarkPoem(ctx context.Context, _ int64, _ *proto.Poem) (*proto.MessageResponse, error) {
	return f.call(ctx, "bookmark")
}

func (f *fakeAPI) RemoveBookmark(ctx context.Context, _ int64, _ *proto.Poem) (*proto.MessageResponse, error) {
	return f.call(ctx, "unbookmark")
}

func (f *fakeAPI) AddBookToReads(ctx context.Context, _ int64, _ *proto.Book) (*proto.MessageResponse, error) {
	return f.call(ctx, "add_read")
}

func (f *fakeAPI) RemoveBookFromReads(ctx context.Context, _ int64, _ *proto.Book) (*proto.MessageResponse, error) {
	return f.call(ctx, "remove_read")
}

func (f *fakeAPI) SendFriendRequest(ctx context.Context, _ string) (*proto.MessageResponse, error) {
	return f.call(ctx, "send_request")
}

func (f *fakeAPI) AcceptFriendRequest(ctx context.Context, _ int64) (*proto.MessageResponse, error) {
	return f.call(ctx, "accept_request")
}

func (f *fakeAPI) RejectFriendRequest(ctx context.Context, _ int64) (*proto.MessageResponse, error) {
	return f.call(ctx, "reject_request")
}

func (f *fakeAPI) CancelFriendRequest(ctx context.Context, _ int64) (*proto.MessageResponse, error) {
	return f.call(ctx, "cancel_request")
}

func (f *fakeAPI) RemoveFriend(ctx context.Context, _ int64) (*proto.MessageResponse, error) {
	return f.call(ctx, "remove_friend")
}

// recordingPublisher captures notifications
type recordingPublisher struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (p *recordingPublisher) Success(message string) {
	p.mu.Lock()
	p.successes = append(p.successes, message)
	p.mu.Unlock()
}

func (p *recordingPublisher) Error(message string) {
	p.mu.Lock()
	p.errors = append(p.errors, message)
	p.mu.Unlock()
}

func (p *recordingPublisher) lastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errors) == 0 {
		return ""
	}
	return p.errors[len(p.errors)-1]
}

func (p *recordingPublisher) lastSuccess() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.successes) == 0 {
		return ""
	}
	return p.successes[len(p.successes)-1]
}

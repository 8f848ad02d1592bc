package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/nkkko/verse/pkg/proto"
)

// Client is an HTTP client for the poetry platform API
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	headers    http.Header
	timeout    time.Duration

	tokenMu sync.RWMutex
	token   string

	cache           *lru.TwoQueueCache
	cacheExpiration time.Duration
}

// cacheItem is a slug lookup result with an expiration time
type cacheItem struct {
	value      interface{}
	expiration time.Time
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithToken sets the session token sent with every request
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHeaders sets additional HTTP headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTransport sets the round tripper used for API requests
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithCache sizes the slug lookup cache. A size of 0 disables caching.
func WithCache(size int, expiration time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = nil
		if size <= 0 {
			return
		}
		cache, err := lru.New2Q(size)
		if err != nil {
			return
		}
		c.cache = cache
		c.cacheExpiration = expiration
	}
}

// New creates a new API client
func New(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	cache, _ := lru.New2Q(256)

	client := &Client{
		baseURL:         u,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		headers:         headers,
		timeout:         30 * time.Second,
		cache:           cache,
		cacheExpiration: time.Minute,
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// SetToken replaces the session token
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

// Token returns the current session token
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// CurrentUser fetches the authenticated user
func (c *Client) CurrentUser(ctx context.Context) (*proto.User, error) {
	var response struct {
		User *proto.User `json:"user"`
	}
	if err := c.call(ctx, http.MethodPost, "/user", nil, &response); err != nil {
		return nil, err
	}
	if response.User == nil {
		return nil, fmt.Errorf("failed to decode response: missing user")
	}
	return response.User, nil
}

// LikePoem adds a poem to the user's liked poems
func (c *Client) LikePoem(ctx context.Context, userID int64, poem *proto.Poem) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodPost, "/add-poem-to-liked/"+itoa(userID), poem)
}

// UnlikePoem removes a poem from the user's liked poems
func (c *Client) UnlikePoem(ctx context.Context, userID int64, poem *proto.Poem) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodPost, "/undo-poem-to-liked/"+itoa(userID), poem)
}

// BookmarkPoem adds a poem to the user's bookmarks
func (c *Client) BookmarkPoem(ctx context.Context, userID int64, poem *proto.Poem) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodPost, "/add-bookmark/"+itoa(userID), poem)
}

// RemoveBookmark removes a poem from the user's bookmarks
func (c *Client) RemoveBookmark(ctx context.Context, userID int64, poem *proto.Poem) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodPost, "/undo-bookmark/"+itoa(userID), poem)
}

// AddBookToReads marks a book as read
func (c *Client) AddBookToReads(ctx context.Context, userID int64, book *proto.Book) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodPost, "/add-book-to-reads/"+itoa(userID), book)
}

// RemoveBookFromReads marks a book as unread
func (c *Client) RemoveBookFromReads(ctx context.Context, userID int64, book *proto.Book) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodPost, "/delete-book-from-reads/"+itoa(userID), book)
}

// SendFriendRequest sends a friend request to a user by name
func (c *Client) SendFriendRequest(ctx context.Context, username string) (*proto.MessageResponse, error) {
	req := struct {
		Username string `json:"username"`
	}{Username: username}
	return c.message(ctx, http.MethodPost, "/send-friend-request", req)
}

// AcceptFriendRequest accepts a received friend request
func (c *Client) AcceptFriendRequest(ctx context.Context, requestID int64) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodPut, "/accept-friend-request/"+itoa(requestID), nil)
}

// RejectFriendRequest rejects a received friend request
func (c *Client) RejectFriendRequest(ctx context.Context, requestID int64) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodDelete, "/reject-friend-request/"+itoa(requestID), nil)
}

// CancelFriendRequest withdraws a sent friend request
func (c *Client) CancelFriendRequest(ctx context.Context, requestID int64) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodDelete, "/cancel-friend-request/"+itoa(requestID), nil)
}

// RemoveFriend ends a friendship
func (c *Client) RemoveFriend(ctx context.Context, friendshipID int64) (*proto.MessageResponse, error) {
	return c.message(ctx, http.MethodDelete, "/remove-friend/"+itoa(friendshipID), nil)
}

// LikedPoemIDs returns the ids of the poems a user liked
func (c *Client) LikedPoemIDs(ctx context.Context, userID int64) ([]int64, error) {
	return c.ids(ctx, "/get-liked-poems-id/"+itoa(userID))
}

// BookmarkedPoemIDs returns the ids of the poems a user bookmarked
func (c *Client) BookmarkedPoemIDs(ctx context.Context, userID int64) ([]int64, error) {
	return c.ids(ctx, "/get-bookmark-id/"+itoa(userID))
}

// ReadBookIDs returns the ids of the books a user has read
func (c *Client) ReadBookIDs(ctx context.Context, userID int64) ([]int64, error) {
	return c.ids(ctx, "/get-reads-books-ids/"+itoa(userID))
}

// Friends returns the current user's friends
func (c *Client) Friends(ctx context.Context) ([]*proto.Friend, error) {
	var friends []*proto.Friend
	if err := c.call(ctx, http.MethodGet, "/get-friends", nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// FriendRequests returns the friend requests the current user received
func (c *Client) FriendRequests(ctx context.Context) ([]*proto.FriendRequest, error) {
	var requests []*proto.FriendRequest
	if err := c.call(ctx, http.MethodGet, "/get-friend-requests", nil, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// SentRequests returns the friend requests the current user sent
func (c *Client) SentRequests(ctx context.Context) ([]*proto.FriendRequest, error) {
	var requests []*proto.FriendRequest
	if err := c.call(ctx, http.MethodGet, "/get-sent-requests", nil, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// Poems returns a page of all poems
func (c *Client) Poems(ctx context.Context, page int) (*proto.PoemPage, error) {
	return c.poemPage(ctx, "/get-poems", url.Values{"page": {strconv.Itoa(page)}})
}

// PopularPoems returns a page of the most liked poems
func (c *Client) PopularPoems(ctx context.Context, page int) (*proto.PoemPage, error) {
	return c.poemPage(ctx, "/get-popular-poems", url.Values{"page": {strconv.Itoa(page)}})
}

// LatestPoems returns a page of the newest poems
func (c *Client) LatestPoems(ctx context.Context, page int) (*proto.PoemPage, error) {
	return c.poemPage(ctx, "/get-latest-poems", url.Values{"page": {strconv.Itoa(page)}})
}

// SearchPoems returns a page of poems matching a search term
func (c *Client) SearchPoems(ctx context.Context, search string, page int) (*proto.PoemPage, error) {
	return c.poemPage(ctx, "/get-search-poems", url.Values{
		"search": {search},
		"page":   {strconv.Itoa(page)},
	})
}

// PoemBySlug retrieves a poem by slug
func (c *Client) PoemBySlug(ctx context.Context, slug string) (*proto.Poem, error) {
	key := "poem:" + slug
	if v, ok := c.cached(key); ok {
		return v.(*proto.Poem), nil
	}

	var response struct {
		Poem *proto.Poem `json:"poem"`
	}
	if err := c.call(ctx, http.MethodGet, "/get-poem/"+url.PathEscape(slug), nil, &response); err != nil {
		return nil, err
	}
	if response.Poem == nil {
		return nil, fmt.Errorf("failed to decode response: missing poem")
	}

	c.store(key, response.Poem)
	return response.Poem, nil
}

// BookBySlug retrieves a book by slug
func (c *Client) BookBySlug(ctx context.Context, slug string) (*proto.Book, error) {
	key := "book:" + slug
	if v, ok := c.cached(key); ok {
		return v.(*proto.Book), nil
	}

	var book proto.Book
	if err := c.call(ctx, http.MethodGet, "/get-book/"+url.PathEscape(slug), nil, &book); err != nil {
		return nil, err
	}

	c.store(key, &book)
	return &book, nil
}

// InvalidateCache drops all cached slug lookups
func (c *Client) InvalidateCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *Client) cached(key string) (interface{}, bool) {
	if c.cache == nil {
		return nil, false
	}
	value, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	item := value.(cacheItem)
	if time.Now().After(item.expiration) {
		c.cache.Remove(key)
		return nil, false
	}
	return item.value, true
}

func (c *Client) store(key string, value interface{}) {
	if c.cache == nil {
		return
	}
	c.cache.Add(key, cacheItem{
		value:      value,
		expiration: time.Now().Add(c.cacheExpiration),
	})
}

func (c *Client) poemPage(ctx context.Context, path string, query url.Values) (*proto.PoemPage, error) {
	var page proto.PoemPage
	if err := c.call(ctx, http.MethodGet, path+"?"+query.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) ids(ctx context.Context, path string) ([]int64, error) {
	var ids []int64
	if err := c.call(ctx, http.MethodGet, path, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) message(ctx context.Context, method, path string, body interface{}) (*proto.MessageResponse, error) {
	var response proto.MessageResponse
	if err := c.call(ctx, method, path, body, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// call makes a request and decodes a JSON response into out.
// An empty response body leaves out untouched.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do makes an HTTP request
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	// A base path prefix such as /api is kept
	u := c.baseURL.JoinPath(ref.EscapedPath())
	u.RawQuery = ref.RawQuery

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.Token(); token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp.StatusCode, data)
	}

	return resp, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

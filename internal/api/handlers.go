package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkkko/verse/internal/actions"
	apierrors "github.com/nkkko/verse/internal/api/errors"
	"github.com/nkkko/verse/internal/api/models"
	"github.com/nkkko/verse/internal/api/response"
	"github.com/nkkko/verse/internal/api/validation"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/pkg/client"
)

// Membership sets as named in responses
const (
	setLiked      = membership.LikedPoems
	setBookmarked = membership.BookmarkedPoems
	setRead       = membership.ReadBooks
)

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if !a.session.Status().SignedIn {
		response.Error(w, r, apierrors.UnavailableError("not_signed_in", "No user is signed in"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, a.session.Status())
}

func (a *API) handleNotification(w http.ResponseWriter, r *http.Request) {
	note := a.session.Notification()
	response.JSON(w, r, http.StatusOK, models.NotificationResponse{
		ID:        note.Id,
		Level:     string(note.Level),
		Message:   note.Message,
		Visible:   note.Visible,
		CreatedAt: note.CreatedAt,
	})
}

// membershipHandler runs a membership action on the {id} entity and
// answers with the resulting membership
func (a *API) membershipHandler(set string, action func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.PathID(r, "id")
		if err != nil {
			response.Error(w, r, err)
			return
		}

		if err := action(r.Context(), id); err != nil {
			a.logger.Debug().Err(err).Str("set", set).Int64("id", id).Msg("Membership action failed")
			response.Error(w, r, actionError(err))
			return
		}

		response.JSON(w, r, http.StatusOK, models.MembershipResponse{
			ID:     id,
			Set:    set,
			Member: a.session.IsMember(set, id),
		})
	}
}

// friendHandler runs a friend action on the {id} request or friendship
func (a *API) friendHandler(action func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validation.PathID(r, "id")
		if err != nil {
			response.Error(w, r, err)
			return
		}

		if err := action(r.Context(), id); err != nil {
			a.logger.Debug().Err(err).Int64("id", id).Msg("Friend action failed")
			response.Error(w, r, actionError(err))
			return
		}
		response.JSON(w, r, http.StatusOK, a.session.Friends())
	}
}

func (a *API) handleSendFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req models.SendFriendRequestRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		a.logger.Debug().Err(err).Msg("Invalid friend request")
		response.Error(w, r, err)
		return
	}

	if err := a.session.SendFriendRequest(r.Context(), req.Username); err != nil {
		response.Error(w, r, actionError(err))
		return
	}
	response.JSON(w, r, http.StatusAccepted, a.session.Friends())
}

func (a *API) handleListFriends(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, a.session.Friends())
}

func (a *API) handleRefreshFriends(w http.ResponseWriter, r *http.Request) {
	if err := a.session.RefreshFriends(r.Context()); err != nil {
		a.logger.Warn().Err(err).Msg("Friend refresh failed")
		response.Error(w, r, apierrors.UpstreamError(0, "refresh_failed", "Failed to refresh friends"))
		return
	}
	response.JSON(w, r, http.StatusOK, a.session.Friends())
}

// actionError maps a failed action to an API error carrying the
// user-facing message
func actionError(err error) error {
	message := actions.UserMessage(err)
	if message == "" {
		message = err.Error()
	}

	if errors.Is(err, actions.ErrNoUser) {
		return apierrors.UnauthorizedError("not_signed_in", message)
	}

	if errors.Is(err, actions.ErrInvalidTarget) {
		return apierrors.ValidationError("invalid_target", message)
	}

	var clientErr *client.APIError
	if errors.As(err, &clientErr) {
		apiErr := apierrors.UpstreamError(clientErr.Status, "upstream_rejected", message)
		if clientErr.Code != "" {
			apiErr.WithDetails(map[string]string{"code": clientErr.Code})
		}
		return apiErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apierrors.UpstreamError(0, "upstream_timeout", message)
	}

	var actionErr *actions.Error
	if errors.As(err, &actionErr) {
		return apierrors.UpstreamError(0, "action_failed", message)
	}

	return apierrors.InternalError("internal_error", message)
}

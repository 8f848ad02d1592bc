package models

import (
	"strings"

	"github.com/nkkko/verse/internal/api/validation"
)

// SendFriendRequestRequest asks the daemon to send a friend request
type SendFriendRequestRequest struct {
	Username string `json:"username"`
}

// Validate trims and validates the request
func (r *SendFriendRequestRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if err := validation.Required("username", r.Username); err != nil {
		return err
	}
	if err := validation.MinLength("username", r.Username, 3); err != nil {
		return err
	}
	return validation.MaxLength("username", r.Username, 50)
}

package auth

import (
	"time"

	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/session"
)

// LoginRequest accepts either a username or an email address as identifier.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	RoleID   string `json:"role_id"`
	RoleName string `json:"role_name"`
}

type LoginResponse struct {
	Token       string         `json:"token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	User        SessionUser    `json:"user"`
	Permissions []string       `json:"permissions"`
	Rules       []ability.Rule `json:"rules"`
}

type SessionResponse struct {
	State              session.State        `json:"state"`
	User               *SessionUser         `json:"user,omitempty"`
	LoginTime          *time.Time           `json:"login_time,omitempty"`
	ExpiresAt          *time.Time           `json:"expires_at,omitempty"`
	LastActivity       *time.Time           `json:"last_activity,omitempty"`
	Warning            bool                 `json:"warning"`
	MinutesUntilExpiry int                  `json:"minutes_until_expiry,omitempty"`
	ExpiredReason      session.ExpiryReason `json:"expired_reason,omitempty"`
	Permissions        []string             `json:"permissions,omitempty"`
}

func sessionResponse(st session.Status, engine *ability.Engine) SessionResponse {
	resp := SessionResponse{
		State:         st.State,
		ExpiredReason: st.ExpiredReason,
	}
	if s := st.Session; s != nil {
		resp.User = &SessionUser{
			ID:       s.User.ID,
			Username: s.User.Username,
			Email:    s.User.Email,
			FullName: s.User.FullName,
			RoleID:   s.User.RoleID,
		}
		resp.LoginTime = &s.LoginTime
		resp.ExpiresAt = &s.ExpiresAt
		resp.LastActivity = &s.LastActivity
		resp.Warning = st.Warning.Active
		resp.MinutesUntilExpiry = st.Warning.MinutesUntilExpiry
		resp.Permissions = engine.Index().Keys()
	}
	return resp
}

package guard

import (
	"fmt"

	"github.com/frahmantamala/access-control/internal"
)

// Denial is a typed refusal returned by a guard check. A nil *Denial means the
// mutation is allowed.
type Denial struct {
	Check   string             `json:"check"`
	Code    internal.ErrorCode `json:"code"`
	Reason  string             `json:"reason"`
	Details interface{}        `json:"details,omitempty"`
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Reason)
}

var sentinels = map[internal.ErrorCode]*internal.AppError{
	internal.ErrCodeRoleNotFound:           internal.ErrRoleNotFound,
	internal.ErrCodeRoleInactive:           internal.ErrRoleInactive,
	internal.ErrCodeDuplicateRoleKey:       internal.ErrDuplicateRoleKey,
	internal.ErrCodeNoPermissions:          internal.ErrNoPermissions,
	internal.ErrCodeInvalidPermissions:     internal.ErrInvalidPermissions,
	internal.ErrCodeUserNotFound:           internal.ErrUserNotFound,
	internal.ErrCodeDuplicateUsername:      internal.ErrDuplicateUsername,
	internal.ErrCodeDuplicateEmail:         internal.ErrDuplicateEmail,
	internal.ErrCodeDeleteNotAllowed:       internal.ErrDeleteNotAllowed,
	internal.ErrCodeModificationNotAllowed: internal.ErrModificationNotAllowed,
}

// AppError converts the denial into the error taxonomy, keeping the reason as
// the message.
func (d *Denial) AppError() *internal.AppError {
	if d == nil {
		return nil
	}
	base, ok := sentinels[d.Code]
	if !ok {
		base = internal.ErrModificationNotAllowed
	}
	appErr := base.WithMessage(d.Reason)
	if d.Details != nil {
		appErr = appErr.WithDetails(d.Details)
	}
	return appErr
}

func deny(check string, code internal.ErrorCode, reason string) *Denial {
	return &Denial{Check: check, Code: code, Reason: reason}
}

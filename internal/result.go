package internal

// ResultError is the error half of the collaborator envelope.
type ResultError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Result is the uniform envelope exchanged with collaborators:
// {success: true, data} or {success: false, error: {code, message, details?}}.
type Result[T any] struct {
	Success bool         `json:"success"`
	Data    T            `json:"data,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func Fail[T any](err *AppError) Result[T] {
	return Result[T]{
		Success: false,
		Error: &ResultError{
			Code:    err.Code,
			Message: err.GetDetailedMessage(),
			Details: err.Details,
		},
	}
}

// ResultOf folds a Go (value, error) pair into the envelope. Errors that are not
// *AppError are reported as INTERNAL_ERROR without leaking their text.
func ResultOf[T any](data T, err error) Result[T] {
	if err == nil {
		return OK(data)
	}
	return Fail[T](AsAppError(err))
}

// Err converts a failed envelope back into an *AppError.
func (r Result[T]) Err() *AppError {
	if r.Success || r.Error == nil {
		return nil
	}
	return &AppError{
		Type:    ErrorTypeInternal,
		Code:    r.Error.Code,
		Message: r.Error.Message,
		Details: r.Error.Details,
	}
}

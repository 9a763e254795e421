package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const domain = "duelquiz"

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodePermissionDenied:   http.StatusForbidden,
	CodeFailedPrecondition: http.StatusBadRequest,
	CodeAborted:            http.StatusConflict,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// Reason tells apart failures sharing the same code, e.g. GAME_FULL and
// ALREADY_IN_SESSION are both matchmaking conflicts.
type Reason string

const (
	ReasonNotFound            Reason = "NOT_FOUND"
	ReasonInvalidState        Reason = "INVALID_STATE"
	ReasonForbidden           Reason = "FORBIDDEN"
	ReasonDuplicateAnswer     Reason = "DUPLICATE_ANSWER"
	ReasonGameFull            Reason = "GAME_FULL"
	ReasonAlreadyInSession    Reason = "ALREADY_IN_SESSION"
	ReasonInsufficientCatalog Reason = "INSUFFICIENT_CATALOG"
)

var reason2code = map[Reason]Code{
	ReasonNotFound:            CodeNotFound,
	ReasonInvalidState:        CodeFailedPrecondition,
	ReasonForbidden:           CodePermissionDenied,
	ReasonDuplicateAnswer:     CodeAlreadyExists,
	ReasonGameFull:            CodeAborted,
	ReasonAlreadyInSession:    CodeAlreadyExists,
	ReasonInsufficientCatalog: CodeFailedPrecondition,
}

type Error struct {
	Code    Code   `json:"code"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

// Newf creates an error for one of the game reasons, deriving the code from it.
func Newf(r Reason, format string, args ...any) *Error {
	code, ok := reason2code[r]
	if !ok {
		code = CodeInternal
	}

	return New(code, WithReason(r), WithMessagef(format, args...))
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	st := status.New(codes.Code(e.Code), e.Message)
	if e.Reason == "" {
		return st
	}

	ds, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(e.Reason),
		Domain: domain,
	})
	if err != nil {
		return st
	}

	return ds
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// FromStatus rebuilds an Error from a gRPC status received by a client.
func FromStatus(err error) *Error {
	st, ok := status.FromError(err)
	if !ok {
		return Internal(err)
	}

	e := New(Code(st.Code()), WithMessagef("%s", st.Message()))
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == domain {
			e.Reason = Reason(info.Reason)
		}
	}

	return e
}

// HasReason reports whether any Error in err's chain carries reason r.
func HasReason(err error, r Reason) bool {
	var e *Error
	return errors.As(err, &e) && e.Reason == r
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(r Reason) Option {
	return optionFunc(func(e *Error) {
		e.Reason = r
	})
}

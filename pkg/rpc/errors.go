package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pg-sharding/shardman/pkg/models/smerror"
)

type wireError struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Reason  string               `json:"reason,omitempty"`
	Value   any                  `json:"value,omitempty"`
	Hint    *smerror.BucketHint `json:"hint,omitempty"`
}

func grpcCode(code string) codes.Code {
	switch code {
	case smerror.SHARDMAN_BUCKET_ALREADY_EXISTS:
		return codes.AlreadyExists
	case smerror.SHARDMAN_NO_SUCH_PROCEDURE:
		return codes.Unimplemented
	case smerror.SHARDMAN_INVALID_REQUEST:
		return codes.InvalidArgument
	case smerror.SHARDMAN_UNEXPECTED, smerror.SHARDMAN_STORAGE_ERROR:
		return codes.Internal
	default:
		return codes.FailedPrecondition
	}
}

// toStatus converts a handler error to a gRPC status carrying the
// SmError in its message, so that the client can rebuild it.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return status.FromContextError(err).Err()
	}

	var se *smerror.SmError
	if !errors.As(err, &se) {
		se = smerror.New(smerror.SHARDMAN_UNEXPECTED, err.Error())
	}

	we := wireError{
		Code:    se.ErrorCode,
		Message: se.Err.Error(),
		Reason:  string(se.Reason),
		Value:   se.Value,
		Hint:    se.Hint,
	}
	raw, mErr := json.Marshal(&we)
	if mErr != nil {
		return status.Error(codes.Internal, se.Error())
	}
	return status.Error(grpcCode(se.ErrorCode), string(raw))
}

// fromStatus rebuilds the SmError sent by the remote side. Transport
// errors are returned unchanged.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var we wireError
	if jErr := json.Unmarshal([]byte(st.Message()), &we); jErr != nil || we.Code == "" {
		return err
	}
	return &smerror.SmError{
		Err:       errors.New(we.Message),
		ErrorCode: we.Code,
		Reason:    smerror.ConfigReason(we.Reason),
		Value:     we.Value,
		Hint:      we.Hint,
	}
}

// ErrDeliveryUncertain marks a call whose request reached the transport
// but whose reply was lost with the connection.
var ErrDeliveryUncertain = errors.New("rpc: request was sent but the connection was lost")

type uncertainError struct {
	err error
}

func (e *uncertainError) Error() string {
	return ErrDeliveryUncertain.Error() + ": " + e.err.Error()
}

func (e *uncertainError) Is(target error) bool {
	return target == ErrDeliveryUncertain
}

func (e *uncertainError) Unwrap() error {
	return e.err
}

// IsDeliveryUncertain reports whether a failed call may still have been
// executed by the remote side: the call was cut by its deadline, cancelled,
// or lost its connection after the request was sent.
func IsDeliveryUncertain(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDeliveryUncertain) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *smerror.SmError
	if errors.As(err, &se) {
		return false
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded, codes.Canceled:
		return true
	default:
		return false
	}
}

package smerror

import (
	"errors"
	"fmt"
)

const (
	SHARDMAN_UNEXPECTED            = "SHARDMAN_UNEXPECTED"
	SHARDMAN_CONFIG_ERROR          = "SHARDMAN_CONFIG_ERROR"
	SHARDMAN_LOCAL_NODE_NOT_FOUND  = "SHARDMAN_LOCAL_NODE_NOT_FOUND"
	SHARDMAN_WRONG_BUCKET          = "SHARDMAN_WRONG_BUCKET"
	SHARDMAN_BUCKET_ALREADY_EXISTS = "SHARDMAN_BUCKET_ALREADY_EXISTS"
	SHARDMAN_NO_SUCH_REPLICASET    = "SHARDMAN_NO_SUCH_REPLICASET"
	SHARDMAN_MOVE_TO_SELF          = "SHARDMAN_MOVE_TO_SELF"
	SHARDMAN_NON_MASTER            = "SHARDMAN_NON_MASTER"
	SHARDMAN_NO_SUCH_PROCEDURE     = "SHARDMAN_NO_SUCH_PROCEDURE"
	SHARDMAN_TRANSFER_ERROR        = "SHARDMAN_TRANSFER_ERROR"
	SHARDMAN_TRANSFER_UNCERTAIN    = "SHARDMAN_TRANSFER_UNCERTAIN"
	SHARDMAN_SYNC_TIMEOUT          = "SHARDMAN_SYNC_TIMEOUT"
	SHARDMAN_STORAGE_ERROR         = "SHARDMAN_STORAGE_ERROR"
	SHARDMAN_INVALID_REQUEST       = "SHARDMAN_INVALID_REQUEST"
)

var existingErrorCodeMap = map[string]string{
	SHARDMAN_UNEXPECTED:            "Unexpected error",
	SHARDMAN_CONFIG_ERROR:          "Invalid sharding configuration",
	SHARDMAN_LOCAL_NODE_NOT_FOUND:  "Local node not found in sharding configuration",
	SHARDMAN_WRONG_BUCKET:          "Wrong bucket",
	SHARDMAN_BUCKET_ALREADY_EXISTS: "Bucket already exists",
	SHARDMAN_NO_SUCH_REPLICASET:    "No such replicaset",
	SHARDMAN_MOVE_TO_SELF:          "Cannot move bucket to its own replicaset",
	SHARDMAN_NON_MASTER:            "Instance is not a master",
	SHARDMAN_NO_SUCH_PROCEDURE:     "No such procedure",
	SHARDMAN_TRANSFER_ERROR:        "Bucket transfer failed",
	SHARDMAN_TRANSFER_UNCERTAIN:    "Bucket transfer outcome is unknown",
	SHARDMAN_SYNC_TIMEOUT:          "Replication sync timed out",
	SHARDMAN_STORAGE_ERROR:         "Storage error",
	SHARDMAN_INVALID_REQUEST:       "Invalid request",
}

// GetMessageByCode returns the human readable name of an error code.
func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

// BucketHint tells the caller where a bucket went.
type BucketHint struct {
	BucketID    uint64 `json:"bucket_id"`
	Destination string `json:"destination,omitempty"`
}

var _ error = &SmError{}

type SmError struct {
	Err error

	ErrorCode string

	// Reason and Value describe configuration errors.
	Reason ConfigReason
	Value  any

	Hint *BucketHint
}

// New creates an error with the given code and message.
func New(errorCode string, errorMsg string) *SmError {
	return &SmError{
		Err:       errors.New(errorMsg),
		ErrorCode: errorCode,
	}
}

// Newf creates an error with the given code and a formatted message.
func Newf(errorCode string, format string, a ...any) *SmError {
	return &SmError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

// NewWrongBucket builds a WrongBucket error. A zero destination
// produces an error without a redirect hint.
func NewWrongBucket(bucketID uint64, destination string, format string, a ...any) *SmError {
	err := Newf(SHARDMAN_WRONG_BUCKET, format, a...)
	if destination != "" {
		err.Hint = &BucketHint{BucketID: bucketID, Destination: destination}
	}
	return err
}

// NewRedirect builds a WrongBucket error that always carries a hint, even
// when the bucket has no known destination.
func NewRedirect(bucketID uint64, destination string, format string, a ...any) *SmError {
	err := Newf(SHARDMAN_WRONG_BUCKET, format, a...)
	err.Hint = &BucketHint{BucketID: bucketID, Destination: destination}
	return err
}

func (er *SmError) Error() string {
	return fmt.Sprintf("Code: %s. Name: %s. Description: %s.",
		er.ErrorCode, GetMessageByCode(er.ErrorCode), er.Err)
}

func (er *SmError) Unwrap() error {
	return er.Err
}

// Code extracts the error code from err, SHARDMAN_UNEXPECTED if err carries none.
func Code(err error) string {
	var se *SmError
	if errors.As(err, &se) {
		return se.ErrorCode
	}
	return SHARDMAN_UNEXPECTED
}

// IsCode reports whether err is an SmError with the given code.
func IsCode(err error, code string) bool {
	var se *SmError
	return errors.As(err, &se) && se.ErrorCode == code
}

package smerror

import (
	"errors"
	"fmt"
)

// ConfigReason names the sharding map rule that was violated.
type ConfigReason string

const (
	NotAMapping         = ConfigReason("NotAMapping")
	ReplicasetNotATable = ConfigReason("ReplicasetNotATable")
	ServersNotATable    = ConfigReason("ServersNotATable")
	ServerNotATable     = ConfigReason("ServerNotATable")
	UuidNotString       = ConfigReason("UuidNotString")
	UriNotString        = ConfigReason("UriNotString")
	NameNotString       = ConfigReason("NameNotString")
	MasterNotBoolean    = ConfigReason("MasterNotBoolean")
	MultipleMasters     = ConfigReason("MultipleMasters")
	DuplicateUri        = ConfigReason("DuplicateUri")
	DuplicateUuid       = ConfigReason("DuplicateUuid")
)

// NewConfigError reports a sharding map violation together with the offending value.
func NewConfigError(reason ConfigReason, value any) *SmError {
	return &SmError{
		Err:       fmt.Errorf("%s: %v", reason, value),
		ErrorCode: SHARDMAN_CONFIG_ERROR,
		Reason:    reason,
		Value:     value,
	}
}

// ConfigReasonOf returns the violated rule if err is a configuration error.
func ConfigReasonOf(err error) (ConfigReason, bool) {
	var se *SmError
	if !errors.As(err, &se) || se.ErrorCode != SHARDMAN_CONFIG_ERROR {
		return "", false
	}
	return se.Reason, true
}

// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ibp

import (
	"fmt"
	"strconv"

	"github.com/zeebo/errs"
)

var (
	// Error is the class of depot failures
	Error = errs.Class("ibp")
	// ErrFormat is used for malformed capabilities, records and responses
	ErrFormat = errs.Class("ibp format")
	// ErrNetwork is used when a depot could not be reached or timed out
	ErrNetwork = errs.Class("ibp network")
)

// UnknownError describes status codes missing from the table.
const UnknownError = "Unknown Error"

var errorTable = map[int]string{
	-1:  "IBP_E_GENERIC",
	-2:  "IBP_E_SOCK_READ",
	-3:  "IBP_E_SOCK_WRITE",
	-4:  "IBP_E_CAP_NOT_FOUND",
	-5:  "IBP_E_CAP_NOT_WRITE",
	-6:  "IBP_E_CAP_NOT_READ",
	-7:  "IBP_E_CAP_NOT_MANAGE",
	-8:  "IBP_E_INVALID_WRITE_CAP",
	-9:  "IBP_E_INVALID_READ_CAP",
	-10: "IBP_E_INVALID_MANAGE_CAP",
	-11: "IBP_E_WRONG_CAP_FORMAT",
	-12: "IBP_E_ACCESS_DENIED",
	-13: "IBP_E_CONNECTION",
	-14: "IBP_E_FILE_OPEN",
	-15: "IBP_E_FILE_READ",
	-16: "IBP_E_FILE_WRITE",
	-17: "IBP_E_FILE_ACCESS",
	-18: "IBP_E_FILE_SEEK_ERROR",
	-19: "IBP_E_WOULD_EXCEED_LIMIT",
	-20: "IBP_E_WOULD_DAMAGE_DATE",
	-21: "IBP_E_BAD_FORMAT",
	-22: "IBP_E_TYPE_NOT_SUPPORTED",
	-23: "IBP_E_RSRC_UNAVAIL",
	-24: "IBP_E_INTERNAL",
	-25: "IBP_E_INVALID_CMD",
	-26: "IBP_E_WOULD_BLOCK",
	-27: "IBP_E_PROT_VERS",
	-28: "IBP_E_LONG_DURATION",
	-29: "IBP_E_WRONG_PASSWORD",
	-30: "IBP_E_INVALID_PARAMETER",
	-31: "IBP_E_INV_PAR_HOST",
	-32: "IBP_E_INV_PAR_PORT",
	-33: "IBP_E_INV_PAR_ATDR",
	-34: "IBP_E_INV_PAR_ATRL",
	-35: "IBP_E_INV_PAR_ATTP",
	-36: "IBP_E_INV_PAR_SIZE",
	-37: "IBP_E_INV_PAR_PTR",
	-38: "IBP_E_ALLOC_FAILED",
	-39: "IBP_E_TOO_MANY_UNITS",
	-40: "IBP_E_GET_SOCK_ATTR",
	-41: "IBP_E_SET_SOCK_ATTR",
	-42: "IBP_E_CLIENT_TIMEOUT",
	-43: "IBP_E_UNKNOWN_FUNCTION",
	-44: "IBP_E_INV_IP_ADDR",
	-45: "IBP_E_WOULD_EXCEED_POLICY",
	-46: "IBP_E_SERVER_TIMEOUT",
	-47: "IBP_E_SERVER_RECOVERING",
	-48: "IBP_E_CAP_DELETING",
	-49: "IBP_E_UNKNOWN_RS",
	-50: "IBP_E_INVALID_RID",
	-51: "IBP_E_NFU_UNKNOWN",
	-52: "IBP_E_NFU_DUP_PARA",
	-53: "IBP_E_QUEUE_FULL",
	-54: "IBP_E_CRT_AUTH_FAIL",
	-55: "IBP_E_INVALID_CERT_FILE",
	-56: "IBP_E_INVALID_PRIVATE_KEY_PASSWD",
	-57: "IBP_E_INVALID_PRIVATE_KEY_FILE",
	-58: "IBP_E_AUTHENTICATION_REQ",
	-59: "IBP_E_AUTHEN_NOT_SUPPORT",
	-60: "IBP_E_AUTHENTICATION_FAILED",
}

// ErrorDescription returns the name of a depot status code.
func ErrorDescription(code int) string {
	if description, ok := errorTable[code]; ok {
		return description
	}
	return UnknownError
}

// DepotError is a negative status code returned by a depot.
type DepotError struct {
	Code        int
	Description string
}

// Error implements error.
func (err *DepotError) Error() string {
	return fmt.Sprintf("depot status %d: %s", err.Code, err.Description)
}

// statusError parses token as a status code and returns a *DepotError when
// it is negative.
func statusError(token string) error {
	if len(token) == 0 || token[0] != '-' {
		return nil
	}
	code, err := strconv.Atoi(token)
	if err != nil {
		return ErrFormat.New("invalid status %q", token)
	}
	return &DepotError{Code: code, Description: ErrorDescription(code)}
}

// Package core wires the custody checker, the OTP ledger, the importer
// and the stores into the operations the HTTP layer exposes.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When users encounter errors, they can quote the error code
// to support staff for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid phone: number is not a 9-digit Spanish mobile
//	         Action: Use 9 digits, optionally prefixed with +34, 0034 or 0
//	         Patterns: "phone must be"
//
//	VAL002 - Invalid IMEI: IMEI is not 15 digits
//	         Action: Check the IMEI printed under the battery or in Settings
//	         Patterns: "imei must be"
//
//	VAL003 - Invalid address: not a corporate @mitie.es account
//	         Action: Use the full corporate address
//	         Patterns: "corporate @mitie.es"
//
//	VAL004 - Missing field: a required field is empty
//	         Action: Fill in every required field and resubmit
//	         Patterns: "is required"
//
// # Custody Errors (CUS001-CUS099)
//
//	CUS001 - Already delivered: the device's latest event is a delivery
//	         Action: Register the reception of the device first
//	         Patterns: "already delivered"
//
// # Signature Errors (OTP001-OTP099)
//
//	OTP001 - Invalid code: signature code is wrong, used or expired
//	         Action: Request a new code; codes last 30 minutes and work once
//	         Patterns: "signature code"
//
//	OTP002 - Mail failure: the code could not be emailed
//	         Action: Check the address and the mail server configuration
//	         Patterns: "send code"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Unsupported format: import file is not CSV or XLSX
//	          Action: Export the data as .csv or .xlsx and retry
//	          Patterns: "unsupported file format"
//
//	FILE002 - Unreadable file: the file could not be parsed
//	          Action: Re-save the file and upload it again
//	          Patterns: "parse csv", "open workbook"
//
//	FILE003 - Empty file: the file has no data rows
//	          Action: Upload a file with at least one row under the header
//	          Patterns: "no data rows"
//
// # Authorization Errors (AUTH001-AUTH099)
//
//	AUTH001 - Wrong password: delete confirmation password does not match
//	          Action: Ask an administrator for the deletion password
//	          Patterns: "delete password"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Store failure: a database operation failed
//	        Action: Please try again in a few moments
//	        Patterns: "store:"
//
//	DB002 - Timeout: the operation timed out
//	        Action: Try a smaller file or try again later
//	        Patterns: "timeout", "context deadline exceeded"
//
//	DB003 - Not found: the record does not exist
//	        Action: Refresh the listing; it may have been deleted
//	        Patterns: "no rows in result set"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: an unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are listed
// before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Support reference code
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Validation
	{
		pattern: "phone must be",
		msg: UserMessage{
			Message: "Phone number is not a valid 9-digit Spanish mobile",
			Action:  "Use 9 digits, optionally prefixed with +34, 0034 or 0",
			Code:    "VAL001",
		},
	},
	{
		pattern: "imei must be",
		msg: UserMessage{
			Message: "IMEI must be exactly 15 digits",
			Action:  "Check the IMEI printed under the battery or in Settings",
			Code:    "VAL002",
		},
	},
	{
		pattern: "corporate @mitie.es",
		msg: UserMessage{
			Message: "The address must be a corporate @mitie.es account",
			Action:  "Use the full corporate address",
			Code:    "VAL003",
		},
	},
	{
		pattern: "is required",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Fill in every required field and resubmit",
			Code:    "VAL004",
		},
	},

	// Custody
	{
		pattern: "already delivered",
		msg: UserMessage{
			Message: "This device is already delivered and has not been received back",
			Action:  "Register the reception of the device first",
			Code:    "CUS001",
		},
	},

	// Signature
	{
		pattern: "signature code",
		msg: UserMessage{
			Message: "The signature code is wrong, already used or expired",
			Action:  "Request a new code; codes last 30 minutes and work once",
			Code:    "OTP001",
		},
	},
	{
		pattern: "send code",
		msg: UserMessage{
			Message: "The validation code could not be emailed",
			Action:  "Check the address and the mail server configuration",
			Code:    "OTP002",
		},
	},

	// Files
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "The import file is not a CSV or Excel workbook",
			Action:  "Export the data as .csv or .xlsx and retry",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Re-save the file and upload it again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Re-save the file and upload it again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The uploaded file has no data rows",
			Action:  "Upload a file with at least one row under the header",
			Code:    "FILE003",
		},
	},

	// Authorization
	{
		pattern: "delete password",
		msg: UserMessage{
			Message: "The deletion password does not match",
			Action:  "Ask an administrator for the deletion password",
			Code:    "AUTH001",
		},
	},

	// Database. Specific patterns before the generic "store:" so a
	// missing record or a timed-out query gets its own code.
	{
		pattern: "no rows in result set",
		msg: UserMessage{
			Message: "The record does not exist",
			Action:  "Refresh the listing; it may have been deleted",
			Code:    "DB003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB002",
		},
	},
	{
		pattern: "store:",
		msg: UserMessage{
			Message: "A database operation failed",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000). Support
// staff should check the logs for the original technical error when
// users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and
// returns the first match. If no pattern matches, the generic ERR000
// fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern and is safe
// to show verbatim alongside its code. Errors mapped to ERR000 should
// be logged and replaced with the generic message.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

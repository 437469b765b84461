package core

// Error codes reference.
//
// Load failures are mapped to user-friendly messages with a code that can be
// quoted in bug reports. Codes are grouped by category:
//
//	FILE001 - Source not found         (SourceNotFoundError)
//	FILE002 - Invalid source           ("no path or reader", "unsupported format")
//	FILE003 - Encoding error           (EncodingError, "unknown encoding")
//	FILE004 - Stream too large         ("stream exceeds")
//	FILE005 - Empty source             ("empty source")
//	FILE006 - Decompression failure    ("gzip:", "bzip2", "xz:", "zstd")
//	SCH001  - Schema mismatch          (SchemaMismatchError)
//	SCH002  - Unknown column           ("unknown column")
//	DB001   - Duplicate key            ("duplicate key")
//	DB004   - Connection refused       ("connection refused")
//	DB008   - Table exists             ("already exists")
//	LOAD001 - Cancelled                (context.Canceled)
//	LOAD002 - Timed out                (context.DeadlineExceeded)
//	ERR000  - Unknown error
//
// Typed errors are matched first with errors.Is. Otherwise patterns are
// matched case-insensitively with strings.Contains and the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// typedErrors maps sentinel errors to messages. Checked before patterns.
var typedErrors = []struct {
	target error
	msg    UserMessage
}{
	{ErrSourceNotFound, UserMessage{
		Message: "The source file does not exist",
		Action:  "Check the path and try again",
		Code:    "FILE001",
	}},
	{ErrEncoding, UserMessage{
		Message: "The file could not be decoded with any candidate encoding",
		Action:  "Add the file's encoding to the candidate list, or save it as UTF-8",
		Code:    "FILE003",
	}},
	{ErrSchemaMismatch, UserMessage{
		Message: "The sources do not share the same columns",
		Action:  "Align the headers, or concatenate with union padding",
		Code:    "SCH001",
	}},
	{context.Canceled, UserMessage{
		Message: "The load was cancelled",
		Action:  "Start the load again when ready",
		Code:    "LOAD001",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "The load timed out",
		Action:  "Use a chunk size or a longer deadline",
		Code:    "LOAD002",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "no path or reader",
		msg: UserMessage{
			Message: "A source has neither a path nor a reader",
			Action:  "Set exactly one of Path or Reader",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "The file format is not supported",
			Action:  "Use CSV, TSV, JSON lines or XLSX, or set the format explicitly",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unknown encoding",
		msg: UserMessage{
			Message: "An encoding name was not recognized",
			Action:  "Use an IANA name such as utf-8, latin-1 or windows-1252",
			Code:    "FILE003",
		},
	},
	{
		pattern: "stream exceeds",
		msg: UserMessage{
			Message: "The input stream is too large to buffer",
			Action:  "Load from a file path or a seekable reader instead",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty source",
		msg: UserMessage{
			Message: "The source has no header row",
			Action:  "Check that the file contains data",
			Code:    "FILE005",
		},
	},
	{
		pattern: "gzip:",
		msg: UserMessage{
			Message: "The compressed file is corrupt",
			Action:  "Re-create the archive or load the uncompressed file",
			Code:    "FILE006",
		},
	},
	{
		pattern: "bzip2",
		msg: UserMessage{
			Message: "The compressed file is corrupt",
			Action:  "Re-create the archive or load the uncompressed file",
			Code:    "FILE006",
		},
	},
	{
		pattern: "xz:",
		msg: UserMessage{
			Message: "The compressed file is corrupt",
			Action:  "Re-create the archive or load the uncompressed file",
			Code:    "FILE006",
		},
	},
	{
		pattern: "zstd",
		msg: UserMessage{
			Message: "The compressed file is corrupt",
			Action:  "Re-create the archive or load the uncompressed file",
			Code:    "FILE006",
		},
	},
	{
		pattern: "unknown column",
		msg: UserMessage{
			Message: "A referenced column does not exist",
			Action:  "Check the column name against the loaded header",
			Code:    "SCH002",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Remove duplicate rows before copying",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "already exists",
		msg: UserMessage{
			Message: "The target table already exists",
			Action:  "Choose another table name or drop the existing table",
			Code:    "DB008",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If nothing matches, a generic fallback message with code ERR000 is returned.
//
// Example:
//
//	_, err := l.Load(ctx, req)
//	msg := MapError(err)
//	// msg.Code == "FILE001" for a missing file
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, te := range typedErrors {
		if errors.Is(err, te.target) {
			return te.msg
		}
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

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

package core

// error_messages.go maps errors from the loaders, the matching engine and
// the merge processor to messages an operator can act on.
//
// # Error Codes Reference
//
// File errors (FILE001-FILE099):
//
//	FILE001 - File not found            loader.ErrNotFound
//	FILE002 - Unsupported file format   loader.ErrUnsupportedFormat
//	FILE003 - File could not be read    loader.ErrExtraction
//	FILE004 - Output could not be saved loader.ErrWrite
//
// Match errors (MATCH001-MATCH099):
//
//	MATCH001 - Not ready        match.ErrNotReady
//	MATCH002 - Unknown column   match.ErrUnknownColumn
//	MATCH003 - No results       ErrNoResults
//
// Merge errors (MERGE001-MERGE099):
//
//	MERGE001 - No phones extracted   merge.ErrNoPhones
//	MERGE002 - No client file loaded merge.ErrNothingProcessed
//
// Request errors (REQ001-REQ099):
//
//	REQ002 - Invalid request    ErrInvalidRequest
//
// Run errors (RUN001-RUN099):
//
//	RUN001 - Busy               ErrBusy
//	RUN002 - Request cancelled  context.Canceled
//	RUN003 - Request timed out  context.DeadlineExceeded
//
// ERR000 is the fallback; check the error log for the technical cause.
//
// Sentinels are matched with errors.Is in table order. Errors that arrive
// as plain text (for example from a failed multipart parse) fall back to
// case-insensitive substring patterns.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/match"
	"github.com/JonMunkholm/datafinder/internal/merge"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

var sentinelMessages = []sentinelMessage{
	{loader.ErrNotFound, UserMessage{
		Message: "The file was not found",
		Action:  "Check the file name and the input directory",
		Code:    "FILE001",
	}},
	{loader.ErrUnsupportedFormat, UserMessage{
		Message: "This file format is not supported",
		Action:  "Use a .xlsx, .xlsm, .csv or .tsv file",
		Code:    "FILE002",
	}},
	{loader.ErrExtraction, UserMessage{
		Message: "The file could not be read",
		Action:  "Open and re-save the file in Excel, or retry with raw extraction enabled",
		Code:    "FILE003",
	}},
	{loader.ErrWrite, UserMessage{
		Message: "The output file could not be saved",
		Action:  "Close the file if it is open in Excel and check the output directory",
		Code:    "FILE004",
	}},
	{match.ErrNotReady, UserMessage{
		Message: "Both spreadsheets and at least one criterion are needed",
		Action:  "Load the source and query files and add a criterion",
		Code:    "MATCH001",
	}},
	{match.ErrUnknownColumn, UserMessage{
		Message: "A criterion refers to a column that does not exist",
		Action:  "Check the column names against the file headers",
		Code:    "MATCH002",
	}},
	{ErrNoResults, UserMessage{
		Message: "There are no results to export",
		Action:  "Run a search that returns at least one row",
		Code:    "MATCH003",
	}},
	{merge.ErrNoPhones, UserMessage{
		Message: "No phone numbers could be extracted from the contacts file",
		Action:  "Check that the contacts file has names in column A and phones in columns D and E",
		Code:    "MERGE001",
	}},
	{merge.ErrNothingProcessed, UserMessage{
		Message: "None of the client files could be processed",
		Action:  "Check that the client files exist in the input directory",
		Code:    "MERGE002",
	}},
	{ErrInvalidRequest, UserMessage{
		Message: "The request is missing required input",
		Action:  "Name the source and query files and both columns of every criterion",
		Code:    "REQ002",
	}},
	{ErrBusy, UserMessage{
		Message: "Another search or merge is running",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "RUN002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "RUN003",
	}},
}

// errorPattern defines a text pattern to match and its user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch errors that carry no sentinel.
var errorPatterns = []errorPattern{
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The uploaded file is too large",
			Action:  "Split the file or raise SERVER_MAX_UPLOAD_SIZE",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no such file",
		msg:     sentinelMessages[0].msg,
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "Access to the file was denied",
			Action:  "Check the file permissions or close it in other programs",
			Code:    "FILE006",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again; if it persists, send the error log to support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Sentinels are
// checked first, then text patterns, then ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
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

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

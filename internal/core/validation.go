package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidRequest marks a run request that is missing required input.
var ErrInvalidRequest = errors.New("invalid request")

// ValidationError describes a single invalid field of a request.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in a request so callers can
// show them all at once. It unwraps to ErrInvalidRequest.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error { return ErrInvalidRequest }

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Validate checks that both tables are named and that every criterion
// names a column on each side. An empty criteria list is left to the
// engine, which reports it as not ready. Unknown operations are not
// rejected here; the engine skips them with a warning.
func (r MatchRequest) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(r.SourcePath) == "" {
		errs = append(errs, ValidationError{Field: "source", Message: "required"})
	}
	if strings.TrimSpace(r.QueryPath) == "" {
		errs = append(errs, ValidationError{Field: "query", Message: "required"})
	}
	for i, c := range r.Criteria {
		field := fmt.Sprintf("criteria[%d]", i)
		if strings.TrimSpace(c.QueryColumn) == "" {
			errs = append(errs, ValidationError{Field: field + ".query_column", Message: "required"})
		}
		if strings.TrimSpace(c.SourceColumn) == "" {
			errs = append(errs, ValidationError{Field: field + ".source_column", Message: "required"})
		}
	}
	if r.OutputFormat != "" && r.OutputPath == "" {
		errs = append(errs, ValidationError{Field: "format", Value: r.OutputFormat, Message: "needs an output path"})
	}
	if r.OutputPath != "" {
		errs = append(errs, validateOutput(r.OutputPath, r.OutputFormat)...)
	}
	return errs.orNil()
}

// Validate checks that a merge names at least one client file and the
// contacts file, and that the output name is a plain .xlsx file name.
func (r MergeRequest) Validate() error {
	var errs ValidationErrors
	if len(r.ClientFiles) == 0 {
		errs = append(errs, ValidationError{Field: "clients", Message: "at least one client file is required"})
	}
	for i, name := range r.ClientFiles {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("clients[%d]", i), Message: "empty file name"})
		}
	}
	if strings.TrimSpace(r.PhoneFile) == "" {
		errs = append(errs, ValidationError{Field: "phones", Message: "required"})
	}
	if r.OutputName != "" {
		if strings.ContainsAny(r.OutputName, `/\`) || r.OutputName == "." || r.OutputName == ".." {
			errs = append(errs, ValidationError{Field: "output_name", Value: r.OutputName, Message: "must be a plain file name"})
		} else if !strings.EqualFold(filepath.Ext(r.OutputName), ".xlsx") {
			errs = append(errs, ValidationError{Field: "output_name", Value: r.OutputName, Message: "must end in .xlsx"})
		}
	}
	return errs.orNil()
}

var exportFormats = map[string]bool{"xlsx": true, "csv": true, "tsv": true}

// validateOutput checks a match output path: a relative path may not climb
// above its base, and the format (or the extension when no format is
// given) must be one Export writes.
func validateOutput(path, format string) []ValidationError {
	var errs []ValidationError
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) && (clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))) {
		errs = append(errs, ValidationError{Field: "output", Value: path, Message: "must not leave its base directory"})
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) || clean == "." {
		errs = append(errs, ValidationError{Field: "output", Value: path, Message: "must name a file"})
	}

	if format != "" {
		if !exportFormats[strings.ToLower(format)] {
			errs = append(errs, ValidationError{Field: "format", Value: format, Message: "must be xlsx, csv or tsv"})
		}
	} else if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); !exportFormats[ext] {
		errs = append(errs, ValidationError{Field: "output", Value: path, Message: "must end in .xlsx, .csv or .tsv"})
	}
	return errs
}

package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ke *KBError
	if !stderrors.As(err, &ke) {
		ke = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ke.Message)
	if ke.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ke.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ke.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	var ke *KBError
	if !stderrors.As(err, &ke) {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", ke.Code),
		slog.String("error", ke.Message),
		slog.String("category", string(ke.Category)),
		slog.Bool("retryable", ke.Retryable),
	}
	if ke.Cause != nil {
		attrs = append(attrs, slog.String("cause", ke.Cause.Error()))
	}
	for k, v := range ke.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}

package metrics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument marks calls that can never succeed with the given parameters.
var ErrInvalidArgument = errors.New("invalid argument")

// MissingDatasetError indicates the requested dataset is absent from the bundle.
type MissingDatasetError struct {
	Dataset string
}

func (e *MissingDatasetError) Error() string {
	return fmt.Sprintf("dataset %q not available", e.Dataset)
}

// MissingFieldError indicates a dataset exists but lacks a column a derivation needs.
type MissingFieldError struct {
	Dataset string
	Field   string
}

func (e *MissingFieldError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("required field %q missing", e.Field)
	}
	return fmt.Sprintf("dataset %q is missing required field %q", e.Dataset, e.Field)
}

// UnsupportedGroupKeyError is returned for grouping dimensions outside the GroupKey enum.
type UnsupportedGroupKeyError struct {
	Key string
}

func (e *UnsupportedGroupKeyError) Error() string {
	return fmt.Sprintf("unsupported group key %q (use date, dow, month_name, year, hour or year_month)", e.Key)
}

// NoOverlapError indicates an alignment whose inner join produced no rows.
type NoOverlapError struct {
	Series []string
}

func (e *NoOverlapError) Error() string {
	return fmt.Sprintf("no common dates across %s", strings.Join(e.Series, ", "))
}

// IsUnavailable reports whether err means "metric unavailable" rather than a caller bug.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var (
		md *MissingDatasetError
		mf *MissingFieldError
		no *NoOverlapError
	)
	return errors.As(err, &md) || errors.As(err, &mf) || errors.As(err, &no)
}

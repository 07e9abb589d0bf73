package validation

import (
	"time"
	"unicode"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/model"
)

const (
	// Size limits
	MaxTableNameLen = 255
	MaxBatchRows    = 100000
	MaxRowColumns   = 1000
	MaxStatementRef = 256

	// Retention bounds
	MinRetention = time.Minute
	MaxRetention = 90 * 24 * time.Hour
)

// Validator validates store operations before they reach storage
type Validator struct {
	maxTableNameLen int
	maxBatchRows    int
	maxRowColumns   int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxTableNameLen: MaxTableNameLen,
		maxBatchRows:    MaxBatchRows,
		maxRowColumns:   MaxRowColumns,
	}
}

// ValidateTableName checks the identifier grammar: a letter or underscore
// followed by letters, digits, underscores or '$'.
func (v *Validator) ValidateTableName(name string) error {
	if name == "" {
		return errors.InvalidTableName(name, "name cannot be empty")
	}
	if len(name) > v.maxTableNameLen {
		return errors.InvalidTableName(name, "name too long")
	}

	for i, r := range name {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return errors.InvalidTableName(name, "name must start with a letter or underscore")
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' {
			return errors.InvalidTableName(name, "name contains invalid characters")
		}
	}
	return nil
}

// ValidateRetention checks the retention window bounds
func (v *Validator) ValidateRetention(window time.Duration) error {
	if window < MinRetention {
		return errors.InvalidArgument("retention window below minimum", nil).
			WithDetail("window", window.String()).
			WithDetail("min", MinRetention.String())
	}
	if window > MaxRetention {
		return errors.InvalidArgument("retention window above maximum", nil).
			WithDetail("window", window.String()).
			WithDetail("max", MaxRetention.String())
	}
	return nil
}

// ValidateBatch checks a row batch before it becomes a segment
func (v *Validator) ValidateBatch(rows []model.Row) error {
	if len(rows) == 0 {
		return errors.InvalidArgument("batch cannot be empty", nil)
	}
	if len(rows) > v.maxBatchRows {
		return errors.BatchTooLarge(len(rows), v.maxBatchRows)
	}
	for i, row := range rows {
		if len(row) == 0 {
			return errors.InvalidArgument("row cannot be empty", nil).WithDetail("row", i)
		}
		if len(row) > v.maxRowColumns {
			return errors.InvalidArgument("row has too many columns", nil).
				WithDetail("row", i).
				WithDetail("columns", len(row)).
				WithDetail("max_columns", v.maxRowColumns)
		}
	}
	return nil
}

// ValidateStatementRef checks the opaque statement reference
func (v *Validator) ValidateStatementRef(ref string) error {
	if ref == "" {
		return errors.InvalidArgument("statement ref cannot be empty", nil)
	}
	if len(ref) > MaxStatementRef {
		return errors.InvalidArgument("statement ref too long", nil).
			WithDetail("length", len(ref)).
			WithDetail("max", MaxStatementRef)
	}
	return nil
}

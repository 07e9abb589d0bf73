package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/variant"
	"github.com/stretchr/testify/assert"
)

func TestValidateTableName(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "orders"},
		{name: "underscore start", input: "_staging"},
		{name: "digits and dollar", input: "events_2026$raw"},
		{name: "empty", input: "", wantErr: true},
		{name: "digit start", input: "9lives", wantErr: true},
		{name: "dash", input: "my-table", wantErr: true},
		{name: "space", input: "my table", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 256), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateTableName(tt.input)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTableName))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRetention(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateRetention(time.Hour))
	assert.NoError(t, v.ValidateRetention(MinRetention))
	assert.NoError(t, v.ValidateRetention(MaxRetention))
	assert.Error(t, v.ValidateRetention(time.Second))
	assert.Error(t, v.ValidateRetention(MaxRetention+time.Hour))
}

func TestValidateBatch(t *testing.T) {
	v := NewValidator()

	assert.Error(t, v.ValidateBatch(nil))
	assert.Error(t, v.ValidateBatch([]model.Row{{}}))
	assert.NoError(t, v.ValidateBatch([]model.Row{{"n": variant.Number(1)}}))

	huge := make([]model.Row, MaxBatchRows+1)
	for i := range huge {
		huge[i] = model.Row{"n": variant.Number(float64(i))}
	}
	err := v.ValidateBatch(huge)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBatchTooLarge))
}

func TestValidateStatementRef(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateStatementRef("stmt-1"))
	assert.Error(t, v.ValidateStatementRef(""))
	assert.Error(t, v.ValidateStatementRef(strings.Repeat("x", MaxStatementRef+1)))
}

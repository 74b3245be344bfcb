package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/relational/domain"
)

func TestParseQueryValue(t *testing.T) {
	tests := []struct {
		name  string
		field string
		raw   string
		kind  string
		want  any
	}{
		{name: "empty", field: "status", raw: "", want: nil},
		{name: "inferred integer", field: "counters.tasksCount", raw: "3", want: int64(3)},
		{name: "inferred float", field: "counters.tasksCount", raw: "2.5", want: 2.5},
		{name: "inferred bool", field: "metadata.archived", raw: "true", want: true},
		{name: "inferred time", field: "metadata.createdAt", raw: "2026-05-04T10:00:00Z", want: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
		{name: "custom field stays string", field: "fields.lot", raw: "007", want: "007"},
		{name: "explicit string", field: "name", raw: "42", kind: "string", want: "42"},
		{name: "explicit number", field: "fields.qty", raw: "12", kind: "number", want: int64(12)},
		{name: "explicit bool", field: "fields.released", raw: "false", kind: "bool", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQueryValue(tt.field, tt.raw, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQueryValue_Invalid(t *testing.T) {
	_, err := parseQueryValue("counters.tasksCount", "many", "number")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = parseQueryValue("metadata.createdAt", "yesterday", "time")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = parseQueryValue("status", "idle", "enum")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

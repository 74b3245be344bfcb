package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		op    repository.QueryOp
		value any
		want  bson.D
	}{
		{
			name:  "equality maps id",
			path:  "id",
			op:    repository.OpEqual,
			value: "job_1",
			want:  bson.D{{Key: "_id", Value: "job_1"}},
		},
		{
			name:  "range on nested counter",
			path:  "counters.tasksCount",
			op:    repository.OpGreaterOrEqual,
			value: 3,
			want:  bson.D{{Key: "counters.tasksCount", Value: bson.D{{Key: "$gte", Value: 3}}}},
		},
		{
			name:  "not equal",
			path:  "status",
			op:    repository.OpNotEqual,
			value: "closed",
			want:  bson.D{{Key: "status", Value: bson.D{{Key: "$ne", Value: "closed"}}}},
		},
		{
			name: "exists defaults to true",
			path: "relationships.machineId",
			op:   repository.OpExists,
			want: bson.D{{Key: "relationships.machineId", Value: bson.D{{Key: "$exists", Value: true}}}},
		},
		{
			name:  "exists false",
			path:  "fields.orderName",
			op:    repository.OpExists,
			value: false,
			want:  bson.D{{Key: "fields.orderName", Value: bson.D{{Key: "$exists", Value: false}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildFilter(tt.path, tt.op, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildFilter_Rejects(t *testing.T) {
	_, err := BuildFilter("status", repository.QueryOp("regex"), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = BuildFilter("", repository.OpEqual, "x")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

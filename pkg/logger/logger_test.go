package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/relational/domain"
)

func TestWithRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithActor(ctx, "planner")
	WithRequestID(ctx, base).Info("half applied", Entity("source", domain.EntityKey{ID: "customer_1", Type: domain.EntityCustomer}))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "planner", fields["actor"])
	assert.Equal(t, map[string]interface{}{"id": "customer_1", "type": "customer"}, fields["source"])
}

func TestWithRequestID_EmptyContext(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithRequestID(context.Background(), base))
}

func TestNew_FallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "chatty", Encoding: "json", Service: "relational-graph"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

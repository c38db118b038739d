package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	jobA := &stubJob{name: "concierge_followup"}
	jobB := &stubJob{name: "outbox_retention"}
	registry, err := NewRegistry(nil, jobA)
	require.NoError(t, err)
	require.NoError(t, registry.Register(nil))
	require.NoError(t, registry.Register(jobB))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Same(t, jobB, jobs[1])
	assert.Equal(t, []string{"concierge_followup", "outbox_retention"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a" already registered`)

	var zero Registry
	require.Error(t, zero.Register(&stubJob{name: "  "}))
	require.NoError(t, zero.Register(&stubJob{name: "b"}))
	assert.Equal(t, []string{"b"}, zero.Names())
}

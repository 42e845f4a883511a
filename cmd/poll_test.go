package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/gridfetch/internal/chunk"
	"github.com/derickschaefer/gridfetch/internal/fetch"
	"github.com/derickschaefer/gridfetch/internal/logger"
	"github.com/derickschaefer/gridfetch/internal/model"
)

type fetcherFunc func(ctx context.Context, params map[string]string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, params map[string]string) ([]byte, error) {
	return f(ctx, params)
}

const pollLoadXML = `<GL_MarketDocument><type>A65</type>
<time_Period.timeInterval><start>2024-01-01T00:00Z</start><end>2024-01-01T02:00Z</end></time_Period.timeInterval>
<TimeSeries><businessType>A04</businessType><quantity_Measure_Unit.name>MAW</quantity_Measure_Unit.name>
<Period><timeInterval><start>2024-01-01T00:00Z</start><end>2024-01-01T02:00Z</end></timeInterval><resolution>PT60M</resolution>
<Point><position>1</position><quantity>10</quantity></Point><Point><position>2</position><quantity>11</quantity></Point>
</Period></TimeSeries></GL_MarketDocument>`

func pollFixture(t *testing.T, fetcher fetch.Fetcher) (*fetch.Orchestrator, model.RequestDef) {
	t.Helper()
	orch := &fetch.Orchestrator{Fetcher: fetcher, Planner: chunk.NewPlanner(1), Log: logger.Nop{}}
	def := model.RequestDef{Name: "cz-load", Params: map[string]string{"documentType": "A65"}}
	return orch, def
}

func TestPollOne_InterruptedBootstrapIsNotStored(t *testing.T) {
	deps := testDeps(t, "")
	require.NoError(t, deps.RequireStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	orch, def := pollFixture(t, fetcherFunc(func(context.Context, map[string]string) ([]byte, error) {
		calls++
		cancel()
		return []byte(pollLoadXML), nil
	}))

	report, err := pollOne(ctx, deps, orch, def)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fetch.ErrInterrupted))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, report.ChunksSucceeded)
	assert.Greater(t, report.ChunksTotal, 1)

	found, err := deps.Store.HasDocument("cz-load")
	require.NoError(t, err)
	assert.False(t, found, "next cycle must bootstrap again")

	runs, err := deps.Store.ListRuns("cz-load")
	require.NoError(t, err)
	assert.Len(t, runs, 1, "the interrupted run is still recorded")
}

func TestPollOne_BootstrapThenAppend(t *testing.T) {
	deps := testDeps(t, "")
	require.NoError(t, deps.RequireStore())

	orch, def := pollFixture(t, fetcherFunc(func(context.Context, map[string]string) ([]byte, error) {
		return []byte(pollLoadXML), nil
	}))

	first, err := pollOne(context.Background(), deps, orch, def)
	require.NoError(t, err)
	assert.True(t, first.Historical)
	assert.Equal(t, 2, first.TotalPoints)

	second, err := pollOne(context.Background(), deps, orch, def)
	require.NoError(t, err)
	assert.False(t, second.Historical, "stored document switches to the operational window")
	assert.Equal(t, 0, second.NewPoints)
}

package top

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattferris/statecraft/pkg/match"
)

func TestResolve_MergeAllAcrossEnvironments(t *testing.T) {
	data := Data{
		"base": {
			{Target: "*", Units: []string{"common"}},
			{Target: "web*", Units: []string{"webserver"}},
		},
		"dev": {
			{Target: "web*", Units: []string{"webserver.debug"}},
		},
	}

	registry := match.NewRegistry(nil)
	agent := match.Agent{ID: "web01"}

	result, err := Resolve(data, agent, registry, Options{Strategy: MergeAll})
	require.NoError(t, err)

	assert.Equal(t, []string{"common", "webserver"}, result["base"])
	assert.Equal(t, []string{"webserver.debug"}, result["dev"])
}

func TestResolve_MergeSameFallsBackToDefaultTopEnv(t *testing.T) {
	data := Data{
		"dev": {
			{Target: "*", Units: []string{"devstate"}},
		},
	}

	registry := match.NewRegistry(nil)
	agent := match.Agent{ID: "web01"}

	result, err := Resolve(data, agent, registry, Options{
		Strategy:      MergeSame,
		CurrentEnv:    "base",
		DefaultTopEnv: "dev",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"devstate"}, result["dev"])
}

func TestResolve_RequestedEnvOverridesStrategy(t *testing.T) {
	data := Data{
		"base": {{Target: "*", Units: []string{"a"}}},
		"qa":   {{Target: "*", Units: []string{"b"}}},
	}

	registry := match.NewRegistry(nil)
	agent := match.Agent{ID: "any"}

	result, err := Resolve(data, agent, registry, Options{Strategy: MergeAll, RequestedEnv: "qa"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, result["qa"])
	assert.Nil(t, result["base"])
}

func TestResolve_DeduplicatesFirstOccurrenceWins(t *testing.T) {
	data := Data{
		"base": {
			{Target: "*", Units: []string{"common"}},
			{Target: "web*", Units: []string{"common", "webserver"}},
		},
	}

	registry := match.NewRegistry(nil)
	agent := match.Agent{ID: "web01"}

	result, err := Resolve(data, agent, registry, Options{Strategy: MergeAll})
	require.NoError(t, err)
	assert.Equal(t, []string{"common", "webserver"}, result["base"])
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokens(t *testing.T) {
	tokens, err := parseTokens(" planner:abc , admin:xyz ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"abc": "planner", "xyz": "admin"}, tokens)

	_, err = parseTokens("planner")
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_TOKENS", "planner:secret")
	t.Setenv("IMPORT_TECH_CARD_ID", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "planner", cfg.APITokens["secret"])
	assert.Nil(t, cfg.TechCardRef())

	cfg.ImportTechCardID = 7
	require.NotNil(t, cfg.TechCardRef())
	assert.EqualValues(t, 7, *cfg.TechCardRef())
}

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/application/query"
)

func TestTiersCommand_PrintsDefaultLadder(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"tiers", "--compact"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Nil(t, app)

	var tiers []query.TierDTO
	require.NoError(t, json.Unmarshal(out.Bytes(), &tiers))
	require.NotEmpty(t, tiers)
	assert.Equal(t, 1, tiers[0].Level)
	assert.Equal(t, 0, tiers[0].PointsRequired)
}

func TestResetCountersCommand_RejectsUnknownWindow(t *testing.T) {
	err := resetCountersCmd.Args(resetCountersCmd, []string{"yearly"})
	assert.Error(t, err)
	assert.NoError(t, resetCountersCmd.Args(resetCountersCmd, []string{"weekly"}))
}

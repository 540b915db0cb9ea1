package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, 4, c.CoresPerCluster)
	require.Equal(t, 0, c.MasterCoreID)
	require.Equal(t, 4, c.CoresNum())
	require.True(t, c.PageSize > 0)
}

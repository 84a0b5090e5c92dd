package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticCatalog(t *testing.T) {
	c := NewStaticCatalog([]string{" FLOOR ", "", "RECEIVING"})

	codes, err := c.Locations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"FLOOR", "RECEIVING"}, codes)

	codes[0] = "mutated"
	again, _ := c.Locations(context.Background())
	assert.Equal(t, "FLOOR", again[0])
}

func TestStaticCatalog_Empty(t *testing.T) {
	_, err := NewStaticCatalog(nil).Locations(context.Background())
	require.ErrorIs(t, err, ErrEmptyCatalog)
}

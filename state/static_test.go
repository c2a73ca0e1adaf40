package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStaticRoutes(t *testing.T) {
	input := `
# R1 in the line R1 - R2 - R3
2 2 1
3 2   2
`
	routes, err := ParseStaticRoutes(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []StaticRoute{
		{Dest: 2, Nh: 2, Metric: 1},
		{Dest: 3, Nh: 2, Metric: 2},
	}, routes)
}

func TestParseStaticRoutes_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   string
	}{
		{"missing metric", "2 2\n", "line 1: expected <dest> <next hop> <metric>"},
		{"extra field", "2 2 1 1\n", "expected <dest> <next hop> <metric>"},
		{"not a number", "# header\n2 x 1\n", `line 2: invalid number "x"`},
		{"out of range", "70000 2 1\n", "invalid number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStaticRoutes(strings.NewReader(tt.input))
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

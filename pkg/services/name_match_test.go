package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchName_Precedence(t *testing.T) {
	keys := []nameKeys{
		{Name: "Region", Caption: "Sales Territory"},
		{Name: "region", Caption: "Region Code"},
		{Name: "customer", Caption: "Customer", Aliases: []string{"client", "buyer"}},
		{Name: "orders"},
	}

	tests := []struct {
		query string
		want  int
	}{
		{"region", 1},          // exact name beats case-insensitive
		{"Region", 0},          // exact name
		{"REGION", 0},          // case-insensitive, first in order
		{"Region Code", 1},     // exact caption
		{"sales territory", 0}, // case-insensitive caption
		{"Client", 2},          // alias
		{"customers", 2},       // plural of name
		{"order", 3},           // singular of name
		{"[Customer]", 2},      // bracketed unique name
		{"[Measures].[orders]", 3},
		{"  customer  ", 2},
		{"product", -1},
		{"", -1},
		{"[]", -1},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, matchName(tt.query, keys))
		})
	}
}

func TestSplitUniqueName(t *testing.T) {
	assert.Equal(t, []string{"Time", "Calendar", "Month"}, splitUniqueName("[Time].[Calendar].[Month]"))
	assert.Equal(t, []string{"region"}, splitUniqueName("[region]"))
	assert.Nil(t, splitUniqueName("region"))
	assert.Nil(t, splitUniqueName("[Time].Calendar"))
}

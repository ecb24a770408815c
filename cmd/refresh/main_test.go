package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"password hidden", "postgres://app:secret@db:5432/hood", "postgres://app:xxxxx@db:5432/hood"},
		{"no credentials", "postgres://db:5432/hood", "postgres://db:5432/hood"},
		{"sqlite file", "file:data/neighborhoods.db", "file:data/neighborhoods.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeURL(tt.in))
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"refreshed": 2}))
	assert.Equal(t, "{\n  \"refreshed\": 2\n}\n", buf.String())
}

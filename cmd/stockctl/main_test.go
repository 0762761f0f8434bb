package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/stockpanel/internal/stockctl/app"
)

func TestReport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		out  string
	}{
		{"bare usage", app.ErrUsage, 2, ""},
		{"wrapped usage", fmt.Errorf("%w: -d is not valid JSON", app.ErrUsage), 2, "stockctl: usage: -d is not valid JSON\n"},
		{"other", errors.New("Invalid credentials"), 1, "stockctl: Invalid credentials\n"},
		{"login required", app.ErrLoginRequired, 1, "stockctl: " + app.ErrLoginRequired.Error() + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.Equal(t, tt.code, report(&buf, tt.err))
			require.Equal(t, tt.out, buf.String())
		})
	}
}

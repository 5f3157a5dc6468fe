package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVIN(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"clean", "WMWML33509TP91234", "WMWML33509TP91234", true},
		{"surrounded by noise", "VIN: WMWML33509TP91234\nMFD 03/09", "WMWML33509TP91234", true},
		{"split across lines", "WMWML335 09TP9\n1234", "WMWML33509TP91234", true},
		{"lowercase input", "wmwml33509tp91234", "WMWML33509TP91234", true},
		{"too short", "WMWML33509TP9123", "", false},
		{"contains excluded letter", "WMWML33509TP9I234", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractVIN(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

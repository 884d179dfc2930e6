package stub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesVersion(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		version string
		want    bool
	}{
		{"empty accepts everything", "", "3.12", true},
		{"star accepts everything", "*", "3.8", true},
		{"lower bound pass", ">=3.8", "3.12", true},
		{"lower bound fail", ">=3.13", "3.12", false},
		{"range pass", ">=3.8,<3.13", "3.12", true},
		{"range fail high", ">=3.8,<3.12", "3.12", false},
		{"exact pass", "==3.12", "3.12", true},
		{"exact fail", "==3.11", "3.12", false},
		{"wildcard pass", "==3.12.*", "3.12", true},
		{"wildcard fail", "==3.11.*", "3.12", false},
		{"compatible release pass", "~=3.8", "3.12", true},
		{"compatible release minor", "~=3.8.1", "3.8", false},
		{"not equal pass", "!=3.11", "3.12", true},
		{"not equal fail", "!=3.12", "3.12", false},
		{"bare version exact", "3.12", "3.12", true},
		{"garbage rejects", "?=abc", "3.12", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesVersion(tt.spec, tt.version))
		})
	}
}

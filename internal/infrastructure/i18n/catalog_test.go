package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Render(t *testing.T) {
	c, err := NewCatalog("en")
	require.NoError(t, err)

	data := map[string]interface{}{
		"ReportID": int64(7),
		"Month":    3,
		"Year":     2025,
		"Role":     "finance",
		"Actor":    "fin-1",
		"Comments": "missing receipts",
	}

	tests := []struct {
		name         string
		locale       string
		key          string
		wantTitle    string
		wantContains string
	}{
		{"english submit", "en", "submitted.employee", "Report submitted", "3/2025"},
		{"english rejection carries comments", "en", "rejected.employee", "Report rejected", "missing receipts"},
		{"chinese final approval", "zh", "approved.final", "报销单已通过", "2025"},
		{"unknown locale uses default", "fr", "review.requested", "Review requested", "#7"},
		{"unknown key uses fallback", "en", "no.such.key", "Expense report update", "#7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, message := c.Render(tt.locale, tt.key, data)
			assert.Equal(t, tt.wantTitle, title)
			assert.Contains(t, message, tt.wantContains)
		})
	}
}

func TestCatalog_Languages(t *testing.T) {
	c, err := NewCatalog("")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "zh"}, c.Languages())
}

func TestNewCatalog_InvalidLocale(t *testing.T) {
	_, err := NewCatalog("not a locale!")
	assert.Error(t, err)
}

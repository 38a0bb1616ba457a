package ids

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	id := New(PrefixAudit)

	if !strings.HasPrefix(id, "AUD-") {
		t.Errorf("expected AUD prefix, got %s", id)
	}
	if !Valid(id, PrefixAudit) {
		t.Errorf("expected valid id, got %s", id)
	}
}

func TestGenerators(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"Audit", NewAuditID, PrefixAudit},
		{"Preprocess", NewPreprocessID, PrefixPreprocess},
		{"Report", NewReportID, PrefixReport},
		{"Analysis", NewAnalysisID, PrefixAnalysis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.gen()
			if !Valid(id, tt.prefix) {
				t.Errorf("expected valid %s id, got %s", tt.prefix, id)
			}
		})
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
		valid  bool
	}{
		{"AUD-1771382404509-3186", "AUD", true},
		{"AUD-1771382404509-3186", "RPT", false},
		{"AUD-notanumber-3186", "AUD", false},
		{"AUD-1771382404509", "AUD", false},
		{"", "AUD", false},
		{"AUD-1-2-3", "AUD", false},
	}

	for _, tt := range tests {
		if got := Valid(tt.id, tt.prefix); got != tt.valid {
			t.Errorf("Valid(%q, %q) = %v, want %v", tt.id, tt.prefix, got, tt.valid)
		}
	}
}

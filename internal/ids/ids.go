// Package ids generates prefixed identifiers for audit pipeline artifacts.
// Format: {PREFIX}-{unix_ms}-{random}, e.g. AUD-1771382404509-3186.
package ids

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// ID prefixes for pipeline artifacts.
const (
	PrefixAudit      = "AUD"
	PrefixPreprocess = "PRE"
	PrefixReport     = "RPT"
	PrefixAnalysis   = "ANA"
)

// New generates an identifier with the given prefix.
func New(prefix string) string {
	ts := time.Now().UnixMilli()
	n := 1000 + rand.Intn(9000)
	return prefix + "-" + strconv.FormatInt(ts, 10) + "-" + strconv.Itoa(n)
}

// NewAuditID generates an audit identifier.
func NewAuditID() string { return New(PrefixAudit) }

// NewPreprocessID generates a preprocessing identifier.
func NewPreprocessID() string { return New(PrefixPreprocess) }

// NewReportID generates a report identifier.
func NewReportID() string { return New(PrefixReport) }

// NewAnalysisID generates a pricing analysis identifier.
func NewAnalysisID() string { return New(PrefixAnalysis) }

// Valid reports whether id has the expected prefix and shape.
func Valid(id, prefix string) bool {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] != prefix {
		return false
	}
	if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
		return false
	}
	_, err := strconv.Atoi(parts[2])
	return err == nil
}

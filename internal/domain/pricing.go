package domain

// Canonical product types used for benchmark lookup.
const (
	ProductTypeLife     = "life"
	ProductTypeHealth   = "health"
	ProductTypeAccident = "accident"
)

// DimensionAnalysis is the result of analyzing one pricing dimension
// against its industry benchmark. Value, Deviation and Reasonable are nil
// when the input could not be parsed; that is a soft failure, not an error.
type DimensionAnalysis struct {
	Value      *float64 `json:"value"`
	Raw        string   `json:"raw,omitempty"`
	Benchmark  float64  `json:"benchmark"`
	Deviation  *float64 `json:"deviation"`
	Reasonable *bool    `json:"reasonable"`
	Note       string   `json:"note"`
}

// PricingAnalysis is the combined result of pricing reasonableness analysis.
type PricingAnalysis struct {
	ID        string            `json:"analysis_id"`
	Mortality DimensionAnalysis `json:"mortality"`
	Interest  DimensionAnalysis `json:"interest"`
	Expense   DimensionAnalysis `json:"expense"`

	OverallScore    int      `json:"overall_score"`
	IsReasonable    bool     `json:"is_reasonable"`
	Recommendations []string `json:"recommendations"`

	ProductType string `json:"product_type"`
}

// IssueCount returns the number of dimensions judged not reasonable.
// Dimensions with an unknown verdict do not count as issues.
func (p *PricingAnalysis) IssueCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, d := range []DimensionAnalysis{p.Mortality, p.Interest, p.Expense} {
		if d.Reasonable != nil && !*d.Reasonable {
			n++
		}
	}
	return n
}

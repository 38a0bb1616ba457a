package domain

// Clause is a single clause extracted from a product filing document.
type Clause struct {
	Text      string `json:"text"`
	Reference string `json:"reference"`
}

// ProductInfo holds the basic product attributes extracted from a document.
type ProductInfo struct {
	ProductName      string `json:"product_name"`
	InsuranceCompany string `json:"insurance_company"`
	ProductType      string `json:"product_type"`
	InsurancePeriod  string `json:"insurance_period"`
	PaymentMethod    string `json:"payment_method"`
	AgeRange         string `json:"age_range"`
	OccupationClass  string `json:"occupation_class"`
}

// PricingParams holds raw pricing parameters extracted from a document.
// Rates are kept as the raw captured text; parsing and normalization
// happen during pricing analysis so unparseable inputs degrade softly.
type PricingParams struct {
	MortalityRate string `json:"mortality_rate,omitempty"`
	InterestRate  string `json:"interest_rate,omitempty"`
	ExpenseRate   string `json:"expense_rate,omitempty"`
	HasCashValue  bool   `json:"cash_value"`
	HasDividend   bool   `json:"dividend"`
}

// DocumentSection describes a heading found during structure parsing.
type DocumentSection struct {
	LineNumber int    `json:"line_number"`
	Level      int    `json:"level"`
	Title      string `json:"title"`
}

// DocumentStructure summarizes the layout of a parsed document.
type DocumentStructure struct {
	TotalLines         int               `json:"total_lines"`
	Sections           []DocumentSection `json:"sections"`
	HasTableOfContents bool              `json:"has_table_of_contents"`
}

// PreprocessResult is the output of document preprocessing.
type PreprocessResult struct {
	ID            string            `json:"preprocess_id"`
	DocumentURL   string            `json:"document_url,omitempty"`
	ContentLength int               `json:"content_length"`
	ProductInfo   ProductInfo       `json:"product_info"`
	Structure     DocumentStructure `json:"structure"`
	Clauses       []Clause          `json:"clauses"`
	PricingParams PricingParams     `json:"pricing_params"`
}

// Package preprocess parses insurance product filing documents into
// structured product info, clauses and pricing parameters.
package preprocess

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/ids"
)

// Minimum lengths for extracted text, in runes. Shorter fragments are noise.
const (
	minClauseLen    = 10
	minParagraphLen = 20
)

// clauseHeading matches clause/chapter/section headings such as 第一条 or 第12章.
var clauseHeading = regexp.MustCompile(`^(第[一二三四五六七八九十百千万\d]+[条章节])(.+)`)

// productInfoPatterns maps each ProductInfo field to candidate patterns,
// tried in order; the first match wins.
var productInfoPatterns = map[string][]*regexp.Regexp{
	"product_name": compileAll(
		`^#\s*(.+?)(?:\s|条款|保险|产品|\n)`,
		`产品名称[：:]\s*(.+?)(?:\n|$)`,
		`保险产品名称[：:]\s*(.+?)(?:\n|$)`,
		`###\s*第[一二三四五六七八九十\d]+\s*条\s*产品名称\s*\n(.+?)(?:\n|$)`,
		`第[一二三四五六七八九十\d]+\s*条\s*产品名称[：:]\s*(.+?)(?:\n|$)`,
		`^(.+?)保险条款`,
	),
	"insurance_company": compileAll(
		`(.+?)人寿保险股份有限公司`,
		`(.+?)保险有限公司`,
		`保险公司[：:]\s*(.+?)(?:\n|$)`,
		`承保公司[：:]\s*(.+?)(?:\n|$)`,
	),
	"product_type": compileAll(
		`###\s*##\s*(.+?)险`,
		`产品类型[：:]\s*(.+?)(?:\n|$)`,
		`险种[：:]\s*(.+?)(?:\n|$)`,
	),
	"insurance_period": compileAll(
		`保险期间[：:]\s*(.+?)(?:\n|$)`,
		`保险期限[：:]\s*(.+?)(?:\n|$)`,
		`###\s*第[一二三四五六七八九十\d]+\s*条\s*保险期间\s*\n(.+?)(?:\n|$)`,
		`第[一二三四五六七八九十\d]+\s*条\s*保险期间[：:]\s*(.+?)(?:\n|$)`,
	),
	"payment_method": compileAll(
		`缴费方式[：:]\s*(.+?)(?:\n|$)`,
		`交费方式[：:]\s*(.+?)(?:\n|$)`,
		`###\s*第[一二三四五六七八九十\d]+\s*条\s*保险费\s*\n(.+?)(?:\n|$)`,
	),
	"age_range": compileAll(
		`投保年龄[：:]\s*(.+?)(?:\n|$)`,
		`年龄限制[：:]\s*(.+?)(?:\n|$)`,
		`凡出生满(.+?)周岁`,
		`(\d+周岁至\d+周岁)`,
	),
	"occupation_class": compileAll(
		`职业类别[：:]\s*(.+?)(?:\n|$)`,
		`职业等级[：:]\s*(.+?)(?:\n|$)`,
	),
}

var mortalityPatterns = compileAll(
	`死亡率[：:]\s*([\d.]+)`,
	`发生率[：:]\s*([\d.]+)`,
	`生命表[：:]\s*(.+?)(?:\n|$)`,
)

var interestPatterns = compileAll(
	`预定利率[：:]\s*([\d.]+)(?:%|％)?`,
	`年利率[：:]\s*([\d.]+)(?:%|％)?`,
	`利率[：:]\s*([\d.]+)(?:%|％)?`,
	`预定利率为([\d.]+)(?:%|％)?`,
	`###\s*第[一二三四五六七八九十\d]+\s*条\s*预定利率\s*\n本产品的预定利率为([\d.]+)(?:%|％)?`,
)

var expensePatterns = compileAll(
	`费用率[：:]\s*([\d.]+)(?:%|％)?`,
	`附加费用率[：:]\s*([\d.]+)(?:%|％)?`,
	`手续费[：:]\s*([\d.]+)(?:%|％)?`,
	`费用率为([\d.]+)(?:%|％)?`,
	`###\s*第[一二三四五六七八九十\d]+\s*条\s*费用率\s*\n本产品的费用率为([\d.]+)(?:%|％)?`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?mi)`+p))
	}
	return out
}

// Run preprocesses a document and returns its structured form.
func Run(content, documentURL string) *domain.PreprocessResult {
	return &domain.PreprocessResult{
		ID:            ids.NewPreprocessID(),
		DocumentURL:   documentURL,
		ContentLength: utf8.RuneCountInString(content),
		ProductInfo:   ExtractProductInfo(content),
		Structure:     ParseStructure(content),
		Clauses:       ExtractClauses(content),
		PricingParams: ExtractPricingParams(content),
	}
}

// ParseStructure scans the document for headings and a table of contents.
func ParseStructure(content string) domain.DocumentStructure {
	lines := strings.Split(content, "\n")

	structure := domain.DocumentStructure{
		TotalLines: len(lines),
	}

	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			level := len(line) - len(strings.TrimLeft(line, "#"))
			title := strings.TrimSpace(strings.TrimLeft(line, "#"))
			structure.Sections = append(structure.Sections, domain.DocumentSection{
				LineNumber: i + 1,
				Level:      level,
				Title:      title,
			})
		}

		if strings.Contains(line, "目录") || strings.Contains(line, "目　录") {
			structure.HasTableOfContents = true
		}
	}

	return structure
}

// ExtractProductInfo extracts basic product attributes via pattern matching.
func ExtractProductInfo(content string) domain.ProductInfo {
	var info domain.ProductInfo

	fields := map[string]*string{
		"product_name":      &info.ProductName,
		"insurance_company": &info.InsuranceCompany,
		"product_type":      &info.ProductType,
		"insurance_period":  &info.InsurancePeriod,
		"payment_method":    &info.PaymentMethod,
		"age_range":         &info.AgeRange,
		"occupation_class":  &info.OccupationClass,
	}

	for field, dst := range fields {
		for _, re := range productInfoPatterns[field] {
			if m := re.FindStringSubmatch(content); m != nil {
				*dst = strings.TrimSpace(m[1])
				break
			}
		}
	}

	return info
}

// ExtractClauses splits the document into clauses on 第N条/章/节 headings.
// When no headings are found it falls back to blank-line paragraphs with
// 段落N references.
func ExtractClauses(content string) []domain.Clause {
	var clauses []domain.Clause

	lines := strings.Split(content, "\n")
	var current []string
	reference := ""
	inClause := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(current, "\n"))
		if utf8.RuneCountInString(text) > minClauseLen {
			clauses = append(clauses, domain.Clause{Text: text, Reference: reference})
		}
	}

	for _, line := range lines {
		if m := clauseHeading.FindStringSubmatch(line); m != nil {
			flush()
			reference = m[1]
			current = []string{line}
			inClause = true
		} else if inClause {
			current = append(current, line)
		}
	}
	flush()

	if len(clauses) > 0 {
		return clauses
	}

	// Paragraph fallback
	for i, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if utf8.RuneCountInString(para) > minParagraphLen {
			clauses = append(clauses, domain.Clause{
				Text:      para,
				Reference: "段落" + strconv.Itoa(i+1),
			})
		}
	}

	return clauses
}

// ExtractPricingParams extracts raw pricing parameters. Values stay as the
// captured text; parsing happens during pricing analysis.
func ExtractPricingParams(content string) domain.PricingParams {
	params := domain.PricingParams{
		HasCashValue: strings.Contains(content, "现金价值") || strings.Contains(content, "退保金"),
		HasDividend:  strings.Contains(content, "分红") || strings.Contains(content, "红利"),
	}

	params.MortalityRate = firstMatch(mortalityPatterns, content)
	params.InterestRate = firstMatch(interestPatterns, content)
	params.ExpenseRate = firstMatch(expensePatterns, content)

	return params
}

func firstMatch(patterns []*regexp.Regexp, content string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(content); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

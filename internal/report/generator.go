// Package report renders audit results into a markdown review report.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/ids"
	"github.com/opensource-insurance/kestrel/internal/remediation"
)

// Row caps for the detail tables.
const (
	maxSevereRows     = 20
	maxMediumRows     = 10
	maxP0Rows         = 10
	maxP1Rows         = 5
	clauseDetailRunes = 80
	clauseFixRunes    = 40
)

// Report is a rendered review report.
type Report struct {
	ID        string    `json:"report_id"`
	Score     int       `json:"score"`
	Grade     string    `json:"grade"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Generated time.Time `json:"generated_at"`
}

// Metadata carries product identity for report consumers.
type Metadata struct {
	ProductName      string `json:"product_name"`
	InsuranceCompany string `json:"insurance_company"`
	ProductType      string `json:"product_type"`
}

// typeRegulations maps product type keywords to their governing regulation.
// Checked in order; the first keyword contained in the product type wins.
var typeRegulations = []struct {
	keyword    string
	regulation string
}{
	{"寿险", "《人身保险公司保险条款和保险费率管理办法》"},
	{"健康险", "《健康保险管理办法》"},
	{"意外险", "《意外伤害保险管理办法》"},
	{"万能险", "《万能型人身保险管理办法》"},
	{"分红险", "《分红型人身保险管理办法》"},
}

// categoryRegulations maps violation categories to a citable regulation
// clause for the detail tables.
var categoryRegulations = map[string]string{
	"产品条款表述":      "《保险法》第十七条：订立保险合同，采用保险人提供的格式条款的，保险人向投保人提供的投保单应当附格式条款，保险人应当向投保人说明合同的内容。",
	"产品责任设计":      "《人身保险公司保险条款和保险费率管理办法》第六条：保险条款应当符合下列要求：（一）结构清晰、文字准确、表述严谨、通俗易懂；（二）要素完整、内容完备",
	"产品费率厘定及精算假设": "《人身保险公司保险条款和保险费率管理办法》第三十六条：保险公司应当按照审慎原则拟定保险费率，不得因费率厘定不真实、不合理而损害投保人、被保险人和受益人的合法权益。",
	"产品报送管理":      "《人身保险公司保险条款和保险费率管理办法》第十二条：保险公司报送审批或者备案的保险条款和保险费率，应当符合下列条件：（一）结构清晰、文字准确、表述严谨、通俗易懂",
	"产品形态设计":      "《健康保险管理办法》第十六条：健康保险产品应当根据被保险人的年龄、性别、健康状况等因素，合理确定保险费率和保险金额。",
	"销售管理":        "《保险销售行为监管办法》第十三条：保险销售人员应当向投保人说明保险合同的内容，特别是对投保人、被保险人、受益人的权利和义务、免除保险人责任的条款以及其他重要条款。",
	"理赔管理":        "《保险法》第二十二条：保险事故发生后，按照保险合同请求保险人赔偿或者给付保险金时，投保人、被保险人或者受益人应当向保险人提供其所能提供的与确认保险事故的性质、原因、损失程度等有关的证明和资料。",
	"客户服务":        "《保险公司服务管理办法》第八条：保险公司应当建立客户服务制度，明确服务标准和服务流程。",
}

const defaultRegulation = "《保险法》及相关监管规定"

// Generate renders the review report. The conclusion section always
// appears; detail and suggestion sections only appear when the audit
// found issues.
func Generate(
	violations []domain.Violation,
	pricing *domain.PricingAnalysis,
	info domain.ProductInfo,
	score int,
	grade string,
	summary domain.AuditSummary,
) *Report {
	var lines []string

	lines = append(lines, conclusionSection(score, grade, summary)...)

	if summary.HasIssues {
		lines = append(lines, "")
		lines = append(lines, detailsSection(violations, pricing, info, summary)...)
		lines = append(lines, "")
		lines = append(lines, suggestionsSection(violations)...)
	}

	return &Report{
		ID:      ids.NewReportID(),
		Score:   score,
		Grade:   grade,
		Content: strings.Join(lines, "\n"),
		Metadata: Metadata{
			ProductName:      orUnknown(info.ProductName, "未知产品"),
			InsuranceCompany: orUnknown(info.InsuranceCompany, "未知"),
			ProductType:      orUnknown(info.ProductType, "未知"),
		},
		Generated: time.Now(),
	}
}

func conclusionSection(score int, grade string, summary domain.AuditSummary) []string {
	opinion, explanation := conclusionText(score, summary)

	counts := summary.ViolationSeverity
	pricingVerdict := "合理"
	if summary.PricingIssues > 0 {
		pricingVerdict = "需关注"
	}

	return []string{
		"一、审核结论",
		fmt.Sprintf("**审核意见**：%s", opinion),
		fmt.Sprintf("**说明**：%s", explanation),
		"",
		"**表1-1：关键指标汇总表**",
		"| 序号 | 指标项 | 结果 | 说明 |",
		"|:----:|:------|:-----|:-----|",
		fmt.Sprintf("| 1 | 综合评分 | %d分 | %s |", score, scoreDescription(score)),
		fmt.Sprintf("| 2 | 合规评级 | %s | 基于违规数量和严重程度评定 |", grade),
		fmt.Sprintf("| 3 | 违规总数 | %d项 | 严重%d项，中等%d项，轻微%d项 |",
			summary.TotalViolations, counts.High, counts.Medium, counts.Low),
		fmt.Sprintf("| 4 | 定价评估 | %s | %d项定价参数需关注 |", pricingVerdict, summary.PricingIssues),
	}
}

// conclusionText decides the review opinion. Any high severity violation
// blocks the product outright regardless of score.
func conclusionText(score int, summary domain.AuditSummary) (opinion, explanation string) {
	counts := summary.ViolationSeverity

	switch {
	case counts.High > 0:
		return "不推荐上会", fmt.Sprintf("产品存在%d项严重违规，触及监管红线，需完成整改后重新审核", counts.High)
	case score >= 90:
		return "推荐通过", "产品符合所有监管要求，未发现违规问题"
	case score >= 75:
		return "条件推荐", fmt.Sprintf("产品整体符合要求，存在%d项中等问题，建议完成修改后提交审核", counts.Medium)
	case score >= 60:
		return "需补充材料", fmt.Sprintf("产品存在%d项问题，建议补充说明材料后复审", summary.TotalViolations)
	default:
		return "不予推荐", "产品合规性不足，不建议提交审核"
	}
}

func scoreDescription(score int) string {
	switch {
	case score >= 90:
		return "产品优秀，建议快速通过"
	case score >= 80:
		return "产品良好，可正常上会"
	case score >= 70:
		return "产品合格，建议完成修改后上会"
	case score >= 60:
		return "产品基本合格，需补充说明材料"
	default:
		return "产品不合格，不建议提交审核"
	}
}

func detailsSection(
	violations []domain.Violation,
	pricing *domain.PricingAnalysis,
	info domain.ProductInfo,
	summary domain.AuditSummary,
) []string {
	lines := []string{"二、问题详情及依据", "**审核依据**"}

	for i, reg := range regulationBasis(info) {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, reg))
	}
	lines = append(lines, "")

	counts := summary.ViolationSeverity
	total := summary.TotalViolations

	lines = append(lines,
		"**表2-1：违规级别统计表**",
		"",
		"| 序号 | 违规级别 | 数量 | 占比 |",
		"|:----:|:--------|:----:|:----:|",
		fmt.Sprintf("| 1 | 严重 | %d项 | %s |", counts.High, percent(counts.High, total)),
		fmt.Sprintf("| 2 | 中等 | %d项 | %s |", counts.Medium, percent(counts.Medium, total)),
		fmt.Sprintf("| 3 | 轻微 | %d项 | %s |", counts.Low, percent(counts.Low, total)),
		fmt.Sprintf("| **合计** | **总计** | **%d项** | **100%%** |", total),
	)

	high := bySeverity(violations, domain.SeverityHigh)
	medium := bySeverity(violations, domain.SeverityMedium)

	if len(high) > 0 {
		lines = append(lines, "", "**表2-2：严重违规明细表**")
		lines = append(lines, violationTable(high, maxSevereRows)...)
	}

	if len(medium) > 0 {
		lines = append(lines, "", "**表2-3：中等违规明细表**")
		lines = append(lines, violationTable(medium, maxMediumRows)...)
	}

	if issues := pricingIssues(pricing); len(issues) > 0 {
		lines = append(lines, "",
			"**表2-4：定价问题汇总表**",
			"| 序号 | 问题类型 | 问题描述 |",
			"|:----:|:---------|:---------|",
		)
		for i, issue := range issues {
			lines = append(lines, fmt.Sprintf("| %d | %s | %s |", i+1, issue.kind, issue.note))
		}
	}

	return lines
}

func suggestionsSection(violations []domain.Violation) []string {
	lines := []string{"三、修改建议"}

	high := bySeverity(violations, domain.SeverityHigh)
	medium := bySeverity(violations, domain.SeverityMedium)

	if len(high) > 0 {
		lines = append(lines, "**表3-1：P0级整改事项表（必须立即整改）**")
		lines = append(lines, remediationTable(high, maxP0Rows)...)
	}

	if len(medium) > 0 {
		lines = append(lines, "", "**表3-2：P1级整改事项表（建议尽快整改）**")
		lines = append(lines, remediationTable(medium, maxP1Rows)...)
	}

	return lines
}

func violationTable(violations []domain.Violation, limit int) []string {
	lines := []string{
		"| 序号 | 条款内容 | 问题说明 | 法规依据 |",
		"|:----:|:---------|:---------|:---------|",
	}

	for i, v := range capped(violations, limit) {
		clause := excerpt(v.ClauseText, clauseDetailRunes)
		if v.ClauseReference != "" && !strings.HasPrefix(v.ClauseReference, "段落") {
			clause = v.ClauseReference + "：" + clause
		}
		regulation := categoryRegulations[v.Category]
		if regulation == "" {
			regulation = defaultRegulation
		}
		description := v.Description
		if description == "" {
			description = "未知"
		}
		lines = append(lines, fmt.Sprintf("| %d | %s... | %s | %s |", i+1, clause, description, regulation))
	}

	return lines
}

func remediationTable(violations []domain.Violation, limit int) []string {
	lines := []string{
		"| 序号 | 条款原文 | 修改建议 |",
		"|:----:|:---------|:---------|",
	}

	for i, v := range capped(violations, limit) {
		clause := excerpt(v.ClauseText, clauseFixRunes)
		fix := remediation.Resolve(v.Description, v.Category, v.Remediation)
		lines = append(lines, fmt.Sprintf("| %d | %s... | %s |", i+1, clause, fix))
	}

	return lines
}

// regulationBasis builds the applicable regulation list. The insurance law
// always applies; a type-specific regulation is added when the product
// type matches, otherwise the general company regulation.
func regulationBasis(info domain.ProductInfo) []string {
	basis := []string{"《中华人民共和国保险法》"}

	for _, tr := range typeRegulations {
		if strings.Contains(info.ProductType, tr.keyword) {
			return append(basis, tr.regulation)
		}
	}

	return append(basis, "《保险公司管理规定》")
}

type pricingIssue struct {
	kind string
	note string
}

// pricingIssues lists failed interest and expense dimensions for the
// pricing table. Mortality deviations surface through recommendations
// instead.
func pricingIssues(pricing *domain.PricingAnalysis) []pricingIssue {
	if pricing == nil {
		return nil
	}

	var issues []pricingIssue

	if d := pricing.Interest; d.Reasonable != nil && !*d.Reasonable {
		issues = append(issues, pricingIssue{kind: "预定利率", note: orUnknown(d.Note, "不符合监管要求")})
	}
	if d := pricing.Expense; d.Reasonable != nil && !*d.Reasonable {
		issues = append(issues, pricingIssue{kind: "费用率", note: orUnknown(d.Note, "不符合监管要求")})
	}

	return issues
}

func bySeverity(violations []domain.Violation, severity string) []domain.Violation {
	var out []domain.Violation
	for _, v := range violations {
		if strings.EqualFold(v.Severity, severity) {
			out = append(out, v)
		}
	}
	return out
}

func capped(violations []domain.Violation, limit int) []domain.Violation {
	if len(violations) > limit {
		return violations[:limit]
	}
	return violations
}

func percent(count, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(count)/float64(total)*100)
}

func excerpt(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

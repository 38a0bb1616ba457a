// Package pricing analyzes product pricing assumptions against industry
// benchmarks.
package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/ids"
)

// Benchmark rates per canonical product type. The "default" entry applies
// to unrecognized types.
var (
	// 中国生命表基准
	mortalityBenchmarks = map[string]float64{
		domain.ProductTypeLife:     0.0005,
		domain.ProductTypeHealth:   0.002,
		domain.ProductTypeAccident: 0.001,
		"default":                  0.001,
	}

	// 监管预定利率上限
	interestBenchmarks = map[string]float64{
		domain.ProductTypeLife:     0.035,
		domain.ProductTypeHealth:   0.035,
		domain.ProductTypeAccident: 0.035,
		"default":                  0.030,
	}

	// 条款费率管理办法费用率上限
	expenseBenchmarks = map[string]float64{
		domain.ProductTypeLife:     0.12,
		domain.ProductTypeHealth:   0.35,
		domain.ProductTypeAccident: 0.25,
		"default":                  0.20,
	}
)

// NormalizeProductType maps an extracted Chinese product type onto the
// canonical benchmark keys. Unrecognized types fall through unchanged and
// hit the default benchmarks.
func NormalizeProductType(productType string) string {
	switch {
	case strings.Contains(productType, "寿险"), strings.Contains(productType, "寿"):
		return domain.ProductTypeLife
	case strings.Contains(productType, "健康"),
		strings.Contains(productType, "医疗"),
		strings.Contains(productType, "重疾"):
		return domain.ProductTypeHealth
	case strings.Contains(productType, "意外"):
		return domain.ProductTypeAccident
	}
	return productType
}

// Analyze runs the pricing reasonableness analysis over all three
// dimensions and computes the overall score and recommendations.
func Analyze(params domain.PricingParams, productType string) *domain.PricingAnalysis {
	productType = NormalizeProductType(productType)

	analysis := &domain.PricingAnalysis{
		ID:          ids.NewAnalysisID(),
		ProductType: productType,
		Mortality:   analyzeMortality(params.MortalityRate, productType),
		Interest:    analyzeInterest(params.InterestRate, productType),
		Expense:     analyzeExpense(params.ExpenseRate, productType),
	}

	analysis.OverallScore = overallScore(analysis)
	analysis.IsReasonable = analysis.OverallScore >= 60
	analysis.Recommendations = recommendations(analysis)

	return analysis
}

// analyzeMortality checks the mortality/incidence rate. A deviation within
// ±20% of the benchmark is reasonable.
func analyzeMortality(raw, productType string) domain.DimensionAnalysis {
	benchmark := lookup(mortalityBenchmarks, productType)

	value, ok := parseRate(raw)
	if !ok {
		return unparsed(raw, benchmark, "无法解析死亡率数值")
	}

	deviation := deviationPct(value, benchmark)
	reasonable := math.Abs(deviation) <= 20

	note := "死亡率/发生率符合行业标准"
	if !reasonable {
		note = "死亡率/发生率偏离行业标准"
	}

	return domain.DimensionAnalysis{
		Value:      &value,
		Benchmark:  benchmark,
		Deviation:  &deviation,
		Reasonable: &reasonable,
		Note:       note,
	}
}

// analyzeInterest checks the guaranteed interest rate. The rate must not
// exceed the regulatory ceiling and must stay within ±10% of it. The
// ceiling check is deliberately asymmetric: rates below benchmark can
// still fail on deviation alone.
func analyzeInterest(raw, productType string) domain.DimensionAnalysis {
	benchmark := lookup(interestBenchmarks, productType)

	value, ok := parseRate(raw)
	if !ok {
		return unparsed(raw, benchmark, "无法解析利率数值")
	}

	deviation := deviationPct(value, benchmark)
	reasonable := value <= benchmark && math.Abs(deviation) <= 10

	note := "预定利率符合监管规定"
	if value > benchmark {
		note = "预定利率超过监管上限"
	} else if math.Abs(deviation) > 10 {
		note = "预定利率偏离行业标准"
	}

	return domain.DimensionAnalysis{
		Value:      &value,
		Benchmark:  benchmark,
		Deviation:  &deviation,
		Reasonable: &reasonable,
		Note:       note,
	}
}

// analyzeExpense checks the expense loading. The rate must not exceed the
// ceiling and must stay within ±15% of it.
func analyzeExpense(raw, productType string) domain.DimensionAnalysis {
	benchmark := lookup(expenseBenchmarks, productType)

	value, ok := parseRate(raw)
	if !ok {
		return unparsed(raw, benchmark, "无法解析费用率数值")
	}

	deviation := deviationPct(value, benchmark)
	reasonable := value <= benchmark && math.Abs(deviation) <= 15

	note := "费用率符合监管规定"
	if value > benchmark {
		note = "费用率超过监管上限"
	} else if math.Abs(deviation) > 15 {
		note = "费用率偏离行业标准"
	}

	return domain.DimensionAnalysis{
		Value:      &value,
		Benchmark:  benchmark,
		Deviation:  &deviation,
		Reasonable: &reasonable,
		Note:       note,
	}
}

// overallScore scores each dimension and averages. Reasonable dimensions
// score 100; unreasonable ones are tiered by absolute deviation; unknown
// verdicts get a neutral 50.
func overallScore(a *domain.PricingAnalysis) int {
	dims := []domain.DimensionAnalysis{a.Mortality, a.Interest, a.Expense}
	total := 0
	for _, d := range dims {
		total += dimensionScore(d)
	}
	return total / len(dims)
}

func dimensionScore(d domain.DimensionAnalysis) int {
	if d.Reasonable == nil {
		return 50
	}
	if *d.Reasonable {
		return 100
	}

	deviation := 0.0
	if d.Deviation != nil {
		deviation = math.Abs(*d.Deviation)
	}
	switch {
	case deviation <= 10:
		return 80
	case deviation <= 20:
		return 60
	case deviation <= 30:
		return 40
	default:
		return 20
	}
}

func recommendations(a *domain.PricingAnalysis) []string {
	var recs []string

	if failed(a.Mortality) {
		if a.Mortality.Deviation != nil && *a.Mortality.Deviation > 0 {
			recs = append(recs, "死亡率/发生率高于行业基准，建议核实定价假设")
		} else {
			recs = append(recs, "死亡率/发生率低于行业基准，注意风险评估")
		}
	}

	if failed(a.Interest) {
		if a.Interest.Value != nil && *a.Interest.Value > a.Interest.Benchmark {
			recs = append(recs, "预定利率超过监管上限，需调整至符合规定")
		} else {
			recs = append(recs, "预定利率偏离行业标准，建议与市场水平保持一致")
		}
	}

	if failed(a.Expense) {
		if a.Expense.Value != nil && *a.Expense.Value > a.Expense.Benchmark {
			recs = append(recs, "费用率超过监管上限，需优化费用结构")
		} else {
			recs = append(recs, "费用率偏低，需确认是否覆盖实际运营成本")
		}
	}

	if passed(a.Mortality) && passed(a.Interest) && passed(a.Expense) {
		recs = append(recs, "定价参数合理，符合监管要求和行业标准")
	}

	return recs
}

func failed(d domain.DimensionAnalysis) bool {
	return d.Reasonable != nil && !*d.Reasonable
}

func passed(d domain.DimensionAnalysis) bool {
	return d.Reasonable != nil && *d.Reasonable
}

func lookup(benchmarks map[string]float64, productType string) float64 {
	if b, ok := benchmarks[productType]; ok {
		return b
	}
	return benchmarks["default"]
}

// parseRate parses a raw rate. Values above 1 are treated as percentages
// and divided by 100 exactly once.
func parseRate(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if v > 1 {
		v = v / 100
	}
	return v, true
}

// deviationPct returns the deviation from benchmark as a percentage,
// rounded to two decimals. A zero benchmark yields zero.
func deviationPct(value, benchmark float64) float64 {
	if benchmark == 0 {
		return 0
	}
	d := (value - benchmark) / benchmark * 100
	return math.Round(d*100) / 100
}

func unparsed(raw string, benchmark float64, note string) domain.DimensionAnalysis {
	return domain.DimensionAnalysis{
		Raw:       raw,
		Benchmark: benchmark,
		Note:      note,
	}
}

// Package remediation resolves a concrete remediation suggestion for each
// violation.
package remediation

import (
	"strings"
)

// vagueSentinels mark stored remediation text as too generic to surface.
var vagueSentinels = []string{
	"请根据具体情况",
	"确保符合",
	"无",
	"按照《保险法》规定",
	"建议",
}

// categoryPattern maps keywords found inside a matched category to a
// specific suggestion. The fallback applies when no keyword matches.
type categoryPattern struct {
	category string
	keywords []keywordSuggestion
	fallback string
}

type keywordSuggestion struct {
	keywords   []string
	suggestion string
}

// patternTable is ordered. The first category whose name appears in the
// violation description or category wins.
var patternTable = []categoryPattern{
	{
		category: "等待期",
		keywords: []keywordSuggestion{
			{[]string{"过长", "超过"}, "将等待期调整为90天以内"},
			{[]string{"症状", "体征"}, "删除将等待期内症状或体征作为免责依据的表述"},
			{[]string{"突出"}, "在条款中以加粗或红色字体突出说明等待期"},
		},
		fallback: "合理设置等待期长度，确保符合监管规定",
	},
	{
		category: "免责条款",
		keywords: []keywordSuggestion{
			{[]string{"不集中"}, "将免责条款集中在合同显著位置"},
			{[]string{"不清晰", "表述不清"}, "使用清晰明确的语言表述免责情形"},
			{[]string{"加粗", "标红", "突出"}, "使用加粗或红色字体突出显示免责条款"},
			{[]string{"免除"}, "删除不合理的免责条款，确保不违反保险法规定"},
		},
		fallback: "完善免责条款的表述和展示方式",
	},
	{
		category: "责任免除",
		fallback: "完善免责条款的表述和展示方式",
	},
	{
		category: "保险金额",
		keywords: []keywordSuggestion{
			{[]string{"不规范", "不一致"}, "使用规范的保险金额表述，确保与保险法一致"},
		},
		fallback: "明确保险金额的确定方式和计算标准",
	},
	{
		category: "保证收益",
		fallback: "删除保证收益相关表述，改为演示收益或说明利益不确定",
	},
	{
		category: "演示收益",
		fallback: "删除保证收益相关表述，改为演示收益或说明利益不确定",
	},
	{
		category: "费率",
		keywords: []keywordSuggestion{
			{[]string{"倒算"}, "停止使用倒算方式确定费率，采用精算方法"},
			{[]string{"偏离实际"}, "根据实际费用水平重新核算附加费用率"},
			{[]string{"不真实", "不合理"}, "重新进行费率厘定，确保符合审慎原则"},
		},
		fallback: "规范费率厘定方法，确保符合监管要求",
	},
	{
		category: "现金价值",
		keywords: []keywordSuggestion{
			{[]string{"超过", "异化"}, "调整现金价值计算方法，确保不超过已交保费"},
		},
		fallback: "规范现金价值计算，确保符合监管规定",
	},
	{
		category: "基因",
		fallback: "删除根据基因检测结果调节费率的约定",
	},
	{
		category: "犹豫期",
		keywords: []keywordSuggestion{
			{[]string{"过短", "不足"}, "将犹豫期调整为15天以上"},
		},
		fallback: "规范犹豫期的起算和时长",
	},
	{
		category: "利率",
		keywords: []keywordSuggestion{
			{[]string{"超过", "超标"}, "将预定利率调整为监管上限以内"},
		},
		fallback: "确保预定利率符合监管规定",
	},
	{
		category: "预定利率",
		keywords: []keywordSuggestion{
			{[]string{"超过", "超标"}, "将预定利率调整为监管上限以内"},
		},
		fallback: "确保预定利率符合监管规定",
	},
	{
		category: "备案",
		keywords: []keywordSuggestion{
			{[]string{"不达标", "未报送"}, "停止销售不达标产品，按规定报送停止使用报告"},
		},
		fallback: "完善产品备案管理，确保符合监管要求",
	},
	{
		category: "产品设计异化",
		keywords: []keywordSuggestion{
			{[]string{"万能型"}, "调整产品形态设计，避免异化为万能型产品"},
			{[]string{"偏离"}, "强化风险保障功能，确保符合保险本质"},
		},
		fallback: "优化产品设计，确保符合保险保障属性",
	},
	{
		category: "异化",
		keywords: []keywordSuggestion{
			{[]string{"万能型"}, "调整产品形态设计，避免异化为万能型产品"},
			{[]string{"偏离"}, "强化风险保障功能，确保符合保险本质"},
		},
		fallback: "优化产品设计，确保符合保险保障属性",
	},
	{
		category: "条款文字",
		fallback: "简化条款表述，使用通俗易懂的语言",
	},
	{
		category: "冗长",
		fallback: "简化条款表述，使用通俗易懂的语言",
	},
	{
		category: "不易懂",
		fallback: "简化条款表述，使用通俗易懂的语言",
	},
	{
		category: "职业",
		fallback: "明确职业类别要求和限制",
	},
	{
		category: "类别",
		fallback: "明确职业类别要求和限制",
	},
	{
		category: "年龄",
		fallback: "明确投保年龄范围和要求",
	},
	{
		category: "保险期间",
		fallback: "明确保险期间和保障期限",
	},
	{
		category: "保险期限",
		fallback: "明确保险期间和保障期限",
	},
}

const (
	fallbackRegulatory = "请根据违规描述进行相应调整，确保符合监管要求"
	fallbackGeneric    = "请根据问题描述进行相应调整，确保符合监管要求"
)

// Resolve produces a remediation suggestion for a violation. Stored
// remediation text is used verbatim when it is non-empty and not vague,
// then the pattern table is consulted, then a description excerpt fallback.
func Resolve(description, category, stored string) string {
	if stored != "" && !isVague(stored) {
		return stored
	}

	for _, cp := range patternTable {
		if !strings.Contains(description, cp.category) && !strings.Contains(category, cp.category) {
			continue
		}
		for _, ks := range cp.keywords {
			for _, kw := range ks.keywords {
				if strings.Contains(description, kw) {
					return ks.suggestion
				}
			}
		}
		return cp.fallback
	}

	if strings.Contains(description, "规定") || strings.Contains(description, "违反") {
		parts := strings.Split(description, "，")
		if len(parts) > 1 {
			return "针对" + excerpt(parts[0], 30) + "问题进行调整"
		}
		return fallbackRegulatory
	}

	return fallbackGeneric
}

// isVague reports whether stored remediation contains any vague sentinel.
func isVague(stored string) bool {
	for _, s := range vagueSentinels {
		if strings.Contains(stored, s) {
			return true
		}
	}
	return false
}

func excerpt(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

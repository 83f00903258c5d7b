// Package view 把对话记录转换成前端和终端客户端直接渲染的展示模型。
package view

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"shopchat-go/internal/model"
)

// Unknown 是缺失字段的占位文本。
const Unknown = "알 수 없음"

// ScoreBand 是分数对应的颜色区间。
type ScoreBand string

const (
	BandGreen  ScoreBand = "green"
	BandYellow ScoreBand = "yellow"
	BandRed    ScoreBand = "red"
	BandGrey   ScoreBand = "grey"
)

// BandFor 返回分数的颜色区间：≥0.8 绿，≥0.6 黄，其余红，缺失为灰。
func BandFor(score *float64) ScoreBand {
	switch {
	case score == nil:
		return BandGrey
	case *score >= 0.8:
		return BandGreen
	case *score >= 0.6:
		return BandYellow
	default:
		return BandRed
	}
}

// Score 是带展示文本的分数。
type Score struct {
	Value   *float64  `json:"value"`
	Percent string    `json:"percent"`
	Band    ScoreBand `json:"band"`
}

func newScore(v *float64) Score {
	pct := 0.0
	if v != nil {
		pct = *v * 100
	}
	return Score{Value: v, Percent: fmt.Sprintf("%.1f%%", pct), Band: BandFor(v)}
}

// EngineIcon 按引擎名称返回图标。
func EngineIcon(engine string) string {
	switch strings.ToLower(engine) {
	case "dialogflow":
		return "🤖"
	case "rag":
		return "📚"
	case "similarity":
		return "🔍"
	default:
		return "⚙️"
	}
}

// SafetyNetPassed 判断安全网判定是否为通过。
func SafetyNetPassed(judgement string) bool {
	return strings.Contains(judgement, "통과")
}

// Analysis 是演示模式下的分析面板。
type Analysis struct {
	EngineIcon         string `json:"engineIcon"`
	Engine             string `json:"engine"`
	IntentName         string `json:"intentName"`
	OriginalIntentName string `json:"originalIntentName"`
	Confidence         Score  `json:"confidence"`
	DialogflowIntent   string `json:"dialogflowIntent"`
	Dialogflow         Score  `json:"dialogflow"`
	Similarity         Score  `json:"similarity"`
	SafetyNet          string `json:"safetyNet"`
	SafetyNetPassed    bool   `json:"safetyNetPassed"`
	RagFinalIntent     string `json:"ragFinalIntent,omitempty"`
	FinalEngine        string `json:"finalEngine"`
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// NewAnalysis 构造分析面板。
func NewAnalysis(info model.AnalysisInfo, trace model.AnalysisTrace) Analysis {
	a := Analysis{
		EngineIcon:         EngineIcon(info.Engine),
		Engine:             orUnknown(info.Engine),
		IntentName:         orUnknown(info.IntentName),
		OriginalIntentName: orUnknown(info.OriginalIntentName),
		Confidence:         newScore(info.OriginalIntentScore),
		DialogflowIntent:   orUnknown(trace.DialogflowIntent),
		Dialogflow:         newScore(trace.DialogflowScore),
		Similarity:         newScore(trace.SimilarityScore),
		SafetyNet:          orUnknown(trace.SafetyNetJudgement),
		SafetyNetPassed:    SafetyNetPassed(trace.SafetyNetJudgement),
		FinalEngine:        orUnknown(trace.FinalEngine),
	}
	if trace.RagFinalIntent != nil {
		a.RagFinalIntent = *trace.RagFinalIntent
	}
	return a
}

// ProductCard 是一张商品卡片。
type ProductCard struct {
	model.Product
	StrikePrice string   `json:"strikePrice,omitempty"`
	Badges      []string `json:"badges,omitempty"`
	Popularity  string   `json:"popularity,omitempty"`
}

// NewProductCard 计算卡片上的划线价、角标和人气文本。
func NewProductCard(p model.Product) ProductCard {
	c := ProductCard{Product: p}
	if p.HasDiscount() {
		c.StrikePrice = humanize.Comma(p.HPrice) + "원"
	}
	if p.IsRecommended {
		c.Badges = append(c.Badges, "추천")
	}
	if p.DiscountRate != "" {
		c.Badges = append(c.Badges, p.DiscountRate)
	}
	if p.SearchCount > 0 {
		c.Popularity = fmt.Sprintf("검색 %d회", p.SearchCount)
	}
	return c
}

// ProductGrid 是一条消息下方的商品列表。
type ProductGrid struct {
	Title    string        `json:"title"`
	Products []ProductCard `json:"products"`
	Summary  string        `json:"summary"`
}

// GridTitle 按消息类型返回商品列表标题。
func GridTitle(messageType string) string {
	switch messageType {
	case model.MessageTypeShopping:
		return "검색 결과"
	case model.MessageTypeRecommendation:
		return "추천 상품"
	default:
		return "상품 목록"
	}
}

// NewProductGrid 没有商品时返回 nil。
func NewProductGrid(messageType string, products []model.Product) *ProductGrid {
	if len(products) == 0 {
		return nil
	}
	cards := make([]ProductCard, 0, len(products))
	for _, p := range products {
		cards = append(cards, NewProductCard(p))
	}
	return &ProductGrid{
		Title:    GridTitle(messageType),
		Products: cards,
		Summary:  fmt.Sprintf("총 %d개의 상품을 찾았습니다.", len(products)),
	}
}

// Entry 是一条可渲染的消息。
type Entry struct {
	model.ConversationEntry
	Grid        *ProductGrid   `json:"grid,omitempty"`
	Analysis    *Analysis      `json:"analysis,omitempty"`
	Feedback    model.Feedback `json:"feedback,omitempty"`
	ShowActions bool           `json:"showActions"`
}

// NewEntry 构造消息视图。分析面板只在演示模式下、且助手消息同时带有分析信息和追踪时出现。
func NewEntry(e model.ConversationEntry, demoMode bool, fb model.Feedback) Entry {
	v := Entry{
		ConversationEntry: e,
		Grid:              NewProductGrid(e.MessageType, e.Products),
		Feedback:          fb,
		ShowActions:       e.Role == model.RoleAssistant && !e.IsError(),
	}
	if demoMode && e.Role == model.RoleAssistant && e.AnalysisInfo != nil && e.AnalysisTrace != nil {
		a := NewAnalysis(*e.AnalysisInfo, *e.AnalysisTrace)
		v.Analysis = &a
	}
	return v
}

// Overview 是对话为空时显示的介绍卡片。
type Overview struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// DefaultOverview 是介绍卡片的默认文本。
var DefaultOverview = Overview{Title: "한신몰 챗봇", Subtitle: "궁금하신 걸 물어보세요."}

// Transcript 是整个对话界面的数据。
type Transcript struct {
	Entries  []Entry            `json:"entries"`
	Busy     bool               `json:"busy"`
	Settings model.ChatSettings `json:"settings"`
	Overview *Overview          `json:"overview,omitempty"`
}

// NewTranscript 组装对话界面。
func NewTranscript(entries []model.ConversationEntry, busy bool, settings model.ChatSettings, feedback map[string]model.Feedback) Transcript {
	t := Transcript{
		Entries:  make([]Entry, 0, len(entries)),
		Busy:     busy,
		Settings: settings,
	}
	for _, e := range entries {
		t.Entries = append(t.Entries, NewEntry(e, settings.DemoMode, feedback[e.ID]))
	}
	if len(entries) == 0 {
		o := DefaultOverview
		t.Overview = &o
	}
	return t
}

// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"time"
)

// Role 表示对话条目的作者。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// 消息类型，决定展示方式。
const (
	MessageTypeText           = "text"
	MessageTypeShopping       = "shopping"
	MessageTypeRecommendation = "recommendation"
	MessageTypeError          = "error"
)

// SenderSystem 标记由前端自身生成的错误提示条目。
const SenderSystem = "system"

// WelcomeEntryID 是新对话中欢迎消息的固定 ID。
const WelcomeEntryID = "welcome-message"

// ErrorKind 区分提交/轮询流程中的失败类型。
type ErrorKind string

const (
	ErrorSendFailed        ErrorKind = "send_failed"
	ErrorConnectionRefused ErrorKind = "connection_refused"
	ErrorNotFound          ErrorKind = "not_found"
	ErrorRequestFailed     ErrorKind = "request_failed"
	ErrorMalformedResult   ErrorKind = "malformed_result"
	ErrorTimeout           ErrorKind = "timeout"
)

// ConversationEntry 是对话记录中的一条消息，追加后不可修改。
type ConversationEntry struct {
	ID            string         `json:"id"`
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	Products      []Product      `json:"products,omitempty"`
	MessageType   string         `json:"messageType,omitempty"`
	AnalysisInfo  *AnalysisInfo  `json:"analysisInfo,omitempty"`
	AnalysisTrace *AnalysisTrace `json:"analysisTrace,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	Sender        string         `json:"sender,omitempty"`
	LanguageCode  string         `json:"languageCode,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty"`
	ResultID      string         `json:"resultId,omitempty"`
	ErrorKind     ErrorKind      `json:"errorKind,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// IsError 判断条目是否为系统生成的错误提示。
func (e ConversationEntry) IsError() bool {
	return e.ErrorKind != ""
}

// AnalysisInfo 是后端返回的意图分析结果。
type AnalysisInfo struct {
	Engine              string   `json:"engine"`
	IntentName          string   `json:"intentName"`
	OriginalIntentName  string   `json:"originalIntentName"`
	OriginalIntentScore *float64 `json:"originalIntentScore"`
}

// AnalysisTrace 记录后端各路由引擎的判定过程。
type AnalysisTrace struct {
	DialogflowIntent   string          `json:"dialogflowIntent"`
	DialogflowScore    *float64        `json:"dialogflowScore"`
	SimilarityScore    *float64        `json:"similarityScore"`
	SafetyNetJudgement string          `json:"safetyNetJudgement"`
	RagFinalIntent     *string         `json:"ragFinalIntent"`
	RetrievedDocuments json.RawMessage `json:"retrievedDocuments,omitempty"`
	FinalEngine        string          `json:"finalEngine"`
}

// Feedback 是用户对助手消息的评价。
type Feedback string

const (
	FeedbackLike    Feedback = "like"
	FeedbackDislike Feedback = "dislike"
	FeedbackNone    Feedback = "none"
)

// Valid 判断评价值是否合法。
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackLike, FeedbackDislike, FeedbackNone:
		return true
	}
	return false
}

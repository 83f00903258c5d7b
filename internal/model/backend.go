package model

import (
	"errors"
	"strings"
)

// SendRequest 是发往后端 send 端点的请求体。
type SendRequest struct {
	SessionID    string `json:"sessionId"`
	UserID       string `json:"userId"`
	Message      string `json:"message"`
	LanguageCode string `json:"languageCode"`
}

// ResultPayload 是 result 端点在 200 时返回的数据。
// 购物类应答把正文放在 Response 中，两者都有时以 Response 为准。
type ResultPayload struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"sessionId"`
	UserID        string         `json:"userId"`
	Sender        string         `json:"sender"`
	Message       string         `json:"message"`
	Response      string         `json:"response"`
	LanguageCode  string         `json:"languageCode"`
	Timestamp     string         `json:"timestamp"`
	MessageType   string         `json:"messageType"`
	Products      []Product      `json:"products"`
	AnalysisInfo  *AnalysisInfo  `json:"analysisInfo"`
	AnalysisTrace *AnalysisTrace `json:"analysisTrace"`
}

var (
	ErrResultMissingID      = errors.New("result payload is missing id")
	ErrResultMissingMessage = errors.New("result payload is missing message")
)

// Body 返回应答正文。
func (p ResultPayload) Body() string {
	if strings.TrimSpace(p.Response) != "" {
		return p.Response
	}
	return p.Message
}

// Validate 检查必需字段：结果 ID 与消息正文。
func (p ResultPayload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrResultMissingID
	}
	if strings.TrimSpace(p.Body()) == "" {
		return ErrResultMissingMessage
	}
	return nil
}

package service

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"shopchat-go/internal/config"
	"shopchat-go/internal/model"
)

// DefaultWelcomeMessage 在配置未指定欢迎语时使用。
const DefaultWelcomeMessage = "안녕하세요! 쇼핑 도우미입니다. 어떤 상품을 찾고 계신가요?"

// Welcome 是新对话开头的助手消息内容。
type Welcome struct {
	Message  string
	Products []model.Product
}

// LoadWelcome 根据配置读取欢迎语和示例商品；未配置商品文件时只有文字。
func LoadWelcome(cfg config.ChatConfig) (Welcome, error) {
	w := Welcome{Message: cfg.WelcomeMessage}
	if w.Message == "" {
		w.Message = DefaultWelcomeMessage
	}
	if cfg.WelcomeProductsFile == "" {
		return w, nil
	}
	data, err := os.ReadFile(cfg.WelcomeProductsFile)
	if err != nil {
		return Welcome{}, fmt.Errorf("failed to read welcome products: %w", err)
	}
	if err := json.Unmarshal(data, &w.Products); err != nil {
		return Welcome{}, fmt.Errorf("failed to parse welcome products: %w", err)
	}
	return w, nil
}

// Entry 生成固定 ID 的欢迎消息。
func (w Welcome) Entry(userID, languageCode string, at time.Time) model.ConversationEntry {
	return model.ConversationEntry{
		ID:           model.WelcomeEntryID,
		Role:         model.RoleAssistant,
		Content:      w.Message,
		Products:     w.Products,
		MessageType:  model.MessageTypeRecommendation,
		UserID:       userID,
		LanguageCode: languageCode,
		CreatedAt:    at,
	}
}

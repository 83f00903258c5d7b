package model

// 聊天模式，对应页头的两个切换按钮。
const (
	ChatModeCS            = "cs"
	ChatModeProductSearch = "product_search"
)

// ChatSettings 是每个用户的界面设置。
type ChatSettings struct {
	DemoMode bool   `json:"demoMode"`
	ChatMode string `json:"chatMode"`
}

// ValidChatMode 判断聊天模式是否合法。
func ValidChatMode(mode string) bool {
	return mode == ChatModeCS || mode == ChatModeProductSearch
}

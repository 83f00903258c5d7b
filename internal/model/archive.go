package model

import "time"

// ArchivedEntry 对应 MySQL 中的 conversation_entries 表，由归档消费者写入。
type ArchivedEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EntryID     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entryId"`
	UserID      string    `gorm:"type:varchar(128);index;not null" json:"userId"`
	SessionID   string    `gorm:"type:varchar(64);index" json:"sessionId"`
	Role        string    `gorm:"type:varchar(16);not null" json:"role"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	MessageType string    `gorm:"type:varchar(32)" json:"messageType"`
	ErrorKind   string    `gorm:"type:varchar(32)" json:"errorKind"`
	Feedback    string    `gorm:"type:varchar(16)" json:"feedback"`
	Payload     string    `gorm:"type:json" json:"-"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

func (ArchivedEntry) TableName() string {
	return "conversation_entries"
}

// SearchHit 是全文检索返回给前端的一条结果。
type SearchHit struct {
	EntryID   string    `json:"entryId"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Score     float64   `json:"score"`
}

// EsEntryDocument 是写入 Elasticsearch 的文档结构。
type EsEntryDocument struct {
	EntryID     string    `json:"entry_id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

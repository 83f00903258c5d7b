// Package stub 实现一个本地联调用的模拟对话后端，行为与真实后端的提交/轮询协议一致：
// 提交后前几次查询返回 202，之后返回回显消息。
package stub

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"shopchat-go/internal/model"
	"shopchat-go/pkg/log"
)

// 包含这些词的消息会附带示例商品。
var productKeywords = []string{"상품", "추천", "찾", "보여", "가격", "iphone", "galaxy", "노트북", "헤드폰"}

type session struct {
	req   model.SendRequest
	polls int
}

// Server 保存已提交的会话。
type Server struct {
	pendingPolls int
	products     []model.Product
	now          func() time.Time
	newID        func() string

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer 创建模拟后端。pendingPolls 是返回结果前回答 202 的次数。
func NewServer(pendingPolls int, products []model.Product) *Server {
	if pendingPolls < 0 {
		pendingPolls = 0
	}
	return &Server{
		pendingPolls: pendingPolls,
		products:     products,
		now:          time.Now,
		newID:        uuid.NewString,
		sessions:     make(map[string]*session),
	}
}

// Router 注册模拟后端的路由。
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/api/messages/receive", s.receive)
	r.GET("/api/messages/result/:sessionId", s.result)
	r.POST("/chat", s.echo)
	return r
}

func (s *Server) receive(c *gin.Context) {
	var req model.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and message are required"})
		return
	}
	s.mu.Lock()
	s.sessions[req.SessionID] = &session{req: req}
	s.mu.Unlock()
	log.Infow("模拟后端收到消息", "sessionId", req.SessionID, "userId", req.UserID, "message", req.Message)
	c.JSON(http.StatusAccepted, gin.H{"sessionId": req.SessionID, "status": "queued"})
}

func (s *Server) result(c *gin.Context) {
	sessionID := c.Param("sessionId")
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	if sess.polls < s.pendingPolls {
		sess.polls++
		s.mu.Unlock()
		c.Status(http.StatusAccepted)
		return
	}
	req := sess.req
	s.mu.Unlock()

	c.JSON(http.StatusOK, s.reply(req))
}

// reply 构造回显结果；商品类查询附带示例商品和分析信息。
func (s *Server) reply(req model.SendRequest) model.ResultPayload {
	p := model.ResultPayload{
		ID:           s.newID(),
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		Sender:       "bot",
		Message:      req.Message,
		LanguageCode: req.LanguageCode,
		Timestamp:    s.now().UTC().Format(time.RFC3339),
		MessageType:  model.MessageTypeText,
	}
	if isProductQuery(req.Message) && len(s.products) > 0 {
		p.MessageType = model.MessageTypeShopping
		p.Products = s.products
	}
	score := 0.87
	p.AnalysisInfo = &model.AnalysisInfo{
		Engine:              "dialogflow",
		IntentName:          "echo",
		OriginalIntentName:  "echo",
		OriginalIntentScore: &score,
	}
	p.AnalysisTrace = &model.AnalysisTrace{
		DialogflowIntent:   "echo",
		DialogflowScore:    &score,
		SafetyNetJudgement: "통과",
		FinalEngine:        "dialogflow",
	}
	return p
}

func isProductQuery(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range productKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// echo 原样返回消息，用来确认网络连通。
func (s *Server) echo(c *gin.Context) {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": body.Message})
}

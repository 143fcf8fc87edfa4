package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"prism-bot/internal/config"
	"prism-bot/internal/db"
)

//go:embed templates/*
var templateFS embed.FS

// Notifier доставляет сообщение пользователю через бота
type Notifier interface {
	SendMessage(chatID int64, text string) error
}

// PanelClient - операции панели, нужные админке
type PanelClient interface {
	RemoveClientByTgID(ctx context.Context, telegramID int64) error

	SubscriptionURL(clientID string) string

	VlessURL(clientID string, telegramID int64) string
}

// Server - административная веб-панель плюс служебные эндпоинты:
// подписанная авторизация через Telegram и проверка доступа по uuid.
type Server struct {
	server   *http.Server
	repo     *db.Repository
	panel    PanelClient
	notifier Notifier
	cfg      *config.Config
}

func NewServer(cfg *config.Config, repo *db.Repository, panel PanelClient, notifier Notifier) (*Server, error) {
	s := &Server{
		repo:     repo,
		panel:    panel,
		notifier: notifier,
		cfg:      cfg,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	engine.SetHTMLTemplate(tmpl)

	s.registerRoutes(engine)

	s.server = &http.Server{
		Addr:    cfg.WebAddr,
		Handler: engine,
	}

	return s, nil
}

func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.POST("/auth", s.handleTelegramAuth)
	engine.GET("/check-access/:uuid", s.handleCheckAccess)

	admin := engine.Group("/", gin.BasicAuth(gin.Accounts{
		s.cfg.AdminUser: s.cfg.AdminPass,
	}))
	admin.GET("/dashboard", s.handleDashboard)
	admin.GET("/admin/stats", s.handleStats)
	admin.POST("/admin/renew/:telegram_id", s.handleRenew)
	admin.POST("/admin/delete/:telegram_id", s.handleDelete)
	admin.POST("/admin/send/:telegram_id", s.handleSend)
}

func (s *Server) Start() error {
	slog.Info("Админ-панель запущена", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type dashboardRow struct {
	TelegramID int64
	Username   string
	ExpiresAt  string
	UUID       string
	Active     bool
}

func (s *Server) handleDashboard(c *gin.Context) {
	username := c.Query("username")
	activeOnly := c.Query("active_only") == "true" || c.Query("active_only") == "1"

	subs, err := s.repo.ListFiltered(username, activeOnly)
	if err != nil {
		slog.Error("Dashboard query failed", "error", err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now().UTC()
	rows := make([]dashboardRow, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, dashboardRow{
			TelegramID: sub.TelegramID,
			Username:   sub.User.Username,
			ExpiresAt:  sub.ExpiresAt.Format("02.01.2006 15:04"),
			UUID:       sub.UUID,
			Active:     sub.ExpiresAt.After(now),
		})
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Rows":       rows,
		"Username":   username,
		"ActiveOnly": activeOnly,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	labels, counts, err := s.repo.ExpiryHistogram()
	if err != nil {
		slog.Error("Stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"labels": labels, "counts": counts})
}

func (s *Server) handleRenew(c *gin.Context) {
	telegramID, ok := s.telegramIDParam(c)
	if !ok {
		return
	}

	if err := s.repo.RenewSubscription(telegramID); err != nil {
		slog.Error("Renew failed", "telegram_id", telegramID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleDelete удаляет подписку локально и пытается отозвать клиента
// в панели. Отзыв - best effort: панель может быть недоступна, запись
// удаляется в любом случае, расхождение только логируется.
func (s *Server) handleDelete(c *gin.Context) {
	telegramID, ok := s.telegramIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()
	if err := s.panel.RemoveClientByTgID(ctx, telegramID); err != nil {
		slog.Warn("Не удалось отозвать клиента в панели, остается сирота",
			"telegram_id", telegramID, "error", err)
	}

	if err := s.repo.DeleteSubscription(telegramID); err != nil {
		slog.Error("Delete failed", "telegram_id", telegramID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSend(c *gin.Context) {
	telegramID, ok := s.telegramIDParam(c)
	if !ok {
		return
	}

	sub, err := s.repo.GetSubscription(telegramID)
	if err != nil {
		slog.Error("Send lookup failed", "telegram_id", telegramID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Конфиг не найден"})
		return
	}

	text := "🔐 Ваш VPN конфиг:\n" + s.panel.VlessURL(sub.UUID, telegramID)
	if err := s.notifier.SendMessage(telegramID, text); err != nil {
		slog.Error("Send delivery failed", "telegram_id", telegramID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (s *Server) handleCheckAccess(c *gin.Context) {
	active, err := s.repo.IsActive(c.Param("uuid"))
	if err != nil {
		slog.Error("Check-access query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": active})
}

func (s *Server) handleTelegramAuth(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid form"})
		return
	}

	fields := make(map[string]string, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	if !verifySignedFields(s.cfg.BotToken, fields) {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Invalid auth"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"telegram_id": fields["id"],
		"username":    fields["username"],
	})
}

func (s *Server) telegramIDParam(c *gin.Context) (int64, bool) {
	telegramID, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Неверный telegram_id"})
		return 0, false
	}
	return telegramID, true
}

// Package api отвечает за административную часть сервера: REST на gin и
// gRPC-консоль. Оба входа работают поверх network.Manager.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/mc-server/internal/auth"
	"github.com/annel0/mc-server/internal/logging"
	"github.com/annel0/mc-server/internal/middleware"
	"github.com/annel0/mc-server/internal/tick"
	"github.com/annel0/mc-server/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const shutdownTimeout = 5 * time.Second

var ErrMissingDependency = errors.New("api: missing dependency")

// Console операции сервера, доступные администратору
type Console interface {
	BroadcastMessage(text string) int
	QueryBlock(ctx context.Context, pos world.BlockPos) (world.BlockState, error)
	Players() []tick.PlayerInfo
	Kick(name, reason string) bool
	Online() int
}

// Snapshotter отдаёт последний снимок игрового цикла
type Snapshotter interface {
	Snapshot() *tick.Snapshot
}

// RestServer представляет REST API сервер
type RestServer struct {
	router   *gin.Engine
	console  Console
	ticks    Snapshotter
	users    auth.UserRepository
	bans     auth.BanList
	tokens   *auth.TokenIssuer
	metrics  *ServerMetrics
	addr     string
	maxSlots int
	logger   *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr       string // адрес для запуска сервера
	Console    Console
	Ticks      Snapshotter
	Users      auth.UserRepository
	Bans       auth.BanList
	Tokens     *auth.TokenIssuer
	MaxPlayers int

	// Registerer и Gatherer для HTTP-метрик и /metrics. nil: глобальный реестр.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) (*RestServer, error) {
	if cfg.Console == nil || cfg.Ticks == nil || cfg.Users == nil || cfg.Bans == nil || cfg.Tokens == nil {
		return nil, ErrMissingDependency
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// === Observability middleware ===
	logger := logging.GetAPILogger()
	router.Use(otelgin.Middleware("mc-admin"))
	router.Use(middleware.NewRequestLogger(logger).Handler())
	promMw := middleware.NewPrometheusMiddleware("admin_api", cfg.Registerer, cfg.Gatherer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:   router,
		console:  cfg.Console,
		ticks:    cfg.Ticks,
		users:    cfg.Users,
		bans:     cfg.Bans,
		tokens:   cfg.Tokens,
		metrics:  NewServerMetrics(),
		addr:     cfg.Addr,
		maxSlots: cfg.MaxPlayers,
		logger:   logger,
	}
	rs.setupRoutes()
	return rs, nil
}

// Handler возвращает http.Handler роутера
func (rs *RestServer) Handler() http.Handler { return rs.router }

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.POST("/auth/login", rs.handleLogin)

	// Защищенные эндпоинты (требуют JWT)
	protected := api.Group("")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/status", rs.handleStatus)
		protected.GET("/players", rs.handlePlayers)
		protected.GET("/blocks/:x/:y/:z", rs.handleBlock)

		admin := protected.Group("")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/broadcast", rs.handleBroadcast)
			admin.POST("/kick", rs.handleKick)
			admin.GET("/bans", rs.handleListBans)
			admin.POST("/bans", rs.handleBan)
			admin.DELETE("/bans/:name", rs.handleUnban)
			admin.POST("/users", rs.handleRegister)
		}
	}
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// RegisterRequest представляет запрос на регистрацию
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// BroadcastRequest сообщение всем игрокам
type BroadcastRequest struct {
	Message string `json:"message" binding:"required"`
}

// KickRequest отключение игрока
type KickRequest struct {
	Name   string `json:"name" binding:"required"`
	Reason string `json:"reason"`
}

// BanRequest бан по имени. Duration в формате time.ParseDuration, пусто: навсегда.
type BanRequest struct {
	Name     string `json:"name" binding:"required"`
	Reason   string `json:"reason"`
	Duration string `json:"duration"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusResponse состояние сервера
type StatusResponse struct {
	Online       int          `json:"online"`
	MaxPlayers   int          `json:"max_players"`
	Tick         uint64       `json:"tick"`
	TPS          float64      `json:"tps"`
	TickMillis   float64      `json:"tick_ms"`
	WorldAge     int64        `json:"world_age"`
	TimeOfDay    int64        `json:"time_of_day"`
	Entities     int          `json:"entities"`
	LoadedChunks int          `json:"loaded_chunks"`
	Process      ProcessStats `json:"process"`
}

// PlayerView игрок в ответе /api/players
type PlayerView struct {
	EntityID int32      `json:"entity_id"`
	Name     string     `json:"name"`
	UUID     string     `json:"uuid"`
	Position [3]float64 `json:"position"`
	Yaw      float32    `json:"yaw"`
	Pitch    float32    `json:"pitch"`
	OnGround bool       `json:"on_ground"`
	Chunks   int        `json:"chunks"`
}

// BlockView блок в ответе /api/blocks
type BlockView struct {
	X    int32  `json:"x"`
	Y    int32  `json:"y"`
	Z    int32  `json:"z"`
	ID   uint16 `json:"id"`
	Meta uint8  `json:"meta"`
	Name string `json:"name"`
}

func fail(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, GenericResponse{Success: false, Message: msg})
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	user, err := rs.users.ValidateCredentials(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserNotFound):
		fail(c, http.StatusUnauthorized, "Неверное имя пользователя или пароль")
		return
	case err != nil:
		rs.logger.Error("❌ Проверка учётных данных %s: %v", req.Username, err)
		fail(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
		return
	}

	token, err := rs.tokens.Issue(user)
	if err != nil {
		rs.logger.Error("❌ Выпуск токена для %s: %v", user.Username, err)
		fail(c, http.StatusInternalServerError, "Ошибка генерации токена")
		return
	}
	rs.logger.Info("🔐 Вход в панель: %s (admin=%t)", user.Username, user.IsAdmin)
	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Token:   token,
		Message: "Успешная авторизация",
		IsAdmin: user.IsAdmin,
	})
}

// handleRegister создаёт учётную запись панели (только для админов)
func (rs *RestServer) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 30 {
		fail(c, http.StatusBadRequest, "Имя пользователя должно быть от 3 до 30 символов")
		return
	}
	if len(req.Password) < 6 {
		fail(c, http.StatusBadRequest, "Пароль должен быть минимум 6 символов")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Ошибка обработки пароля")
		return
	}
	user, err := rs.users.CreateUser(c.Request.Context(), req.Username, hash, req.IsAdmin)
	if errors.Is(err, auth.ErrUserExists) {
		fail(c, http.StatusConflict, "Пользователь уже существует")
		return
	}
	if err != nil {
		rs.logger.Error("❌ Создание пользователя %s: %v", req.Username, err)
		fail(c, http.StatusInternalServerError, "Ошибка создания пользователя")
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Пользователь успешно создан",
		Data:    gin.H{"username": user.Username, "is_admin": user.IsAdmin},
	})
}

func (rs *RestServer) handleStatus(c *gin.Context) {
	snap := rs.ticks.Snapshot()
	c.JSON(http.StatusOK, StatusResponse{
		Online:       rs.console.Online(),
		MaxPlayers:   rs.maxSlots,
		Tick:         snap.Tick,
		TPS:          snap.TPS,
		TickMillis:   float64(snap.Duration) / float64(time.Millisecond),
		WorldAge:     snap.WorldAge,
		TimeOfDay:    snap.TimeOfDay,
		Entities:     snap.Entities,
		LoadedChunks: snap.LoadedChunks,
		Process:      rs.metrics.Stats(),
	})
}

func (rs *RestServer) handlePlayers(c *gin.Context) {
	players := rs.console.Players()
	out := make([]PlayerView, 0, len(players))
	for _, p := range players {
		out = append(out, PlayerView{
			EntityID: p.EntityID,
			Name:     p.Name,
			UUID:     p.UUID.String(),
			Position: [3]float64{p.Position.X(), p.Position.Y(), p.Position.Z()},
			Yaw:      p.Yaw,
			Pitch:    p.Pitch,
			OnGround: p.OnGround,
			Chunks:   p.Chunks,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (rs *RestServer) handleBlock(c *gin.Context) {
	var coords [3]int32
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.ParseInt(c.Param(name), 10, 32)
		if err != nil {
			fail(c, http.StatusBadRequest, "Координата "+name+" должна быть целым числом")
			return
		}
		coords[i] = int32(v)
	}
	pos := world.BlockPos{X: coords[0], Y: coords[1], Z: coords[2]}

	st, err := rs.console.QueryBlock(c.Request.Context(), pos)
	switch {
	case errors.Is(err, world.ErrOutOfBounds):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		rs.logger.Error("❌ Чтение блока %s: %v", pos, err)
		fail(c, http.StatusServiceUnavailable, "Чанк недоступен")
		return
	}
	c.JSON(http.StatusOK, blockView(pos, st))
}

func blockView(pos world.BlockPos, st world.BlockState) BlockView {
	v := BlockView{X: pos.X, Y: pos.Y, Z: pos.Z, ID: uint16(st.ID), Meta: st.Meta, Name: "unknown"}
	if info, ok := st.Info(); ok {
		v.Name = info.Name
	}
	return v
}

func (rs *RestServer) handleBroadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, "Пустое сообщение")
		return
	}
	n := rs.console.BroadcastMessage(strings.TrimSpace(req.Message))
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Сообщение отправлено", Data: gin.H{"delivered": n}})
}

func (rs *RestServer) handleKick(c *gin.Context) {
	var req KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if req.Reason == "" {
		req.Reason = "Kicked by an operator"
	}
	if !rs.console.Kick(req.Name, req.Reason) {
		fail(c, http.StatusNotFound, "Игрок не в сети")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Игрок отключён"})
}

func (rs *RestServer) handleListBans(c *gin.Context) {
	bans, err := rs.bans.List(c.Request.Context())
	if err != nil {
		rs.logger.Error("❌ Чтение бан-листа: %v", err)
		fail(c, http.StatusInternalServerError, "Бан-лист недоступен")
		return
	}
	c.JSON(http.StatusOK, bans)
}

// handleBan банит игрока и отключает его, если он в сети
func (rs *RestServer) handleBan(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	ban := auth.Ban{Name: req.Name, Reason: req.Reason, Source: c.GetString(ctxUsername)}
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			fail(c, http.StatusBadRequest, "Неверная длительность бана")
			return
		}
		ban.Expires = time.Now().Add(d)
	}

	err := rs.bans.Ban(c.Request.Context(), ban)
	if errors.Is(err, auth.ErrInvalidName) {
		fail(c, http.StatusBadRequest, "Недопустимое имя игрока")
		return
	}
	if err != nil {
		rs.logger.Error("❌ Бан %s: %v", req.Name, err)
		fail(c, http.StatusInternalServerError, "Ошибка записи бана")
		return
	}

	reason := "You are banned from this server."
	if req.Reason != "" {
		reason += "\nReason: " + req.Reason
	}
	kicked := rs.console.Kick(req.Name, reason)
	rs.logger.Info("🔨 %s забанил %s: %q", ban.Source, req.Name, req.Reason)
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Игрок забанен", Data: gin.H{"kicked": kicked}})
}

func (rs *RestServer) handleUnban(c *gin.Context) {
	name := c.Param("name")
	err := rs.bans.Unban(c.Request.Context(), name)
	if errors.Is(err, auth.ErrNotBanned) {
		fail(c, http.StatusNotFound, "Игрок не забанен")
		return
	}
	if err != nil {
		rs.logger.Error("❌ Снятие бана %s: %v", name, err)
		fail(c, http.StatusInternalServerError, "Ошибка снятия бана")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Бан снят"})
}

// Run слушает Addr до отмены ctx
func (rs *RestServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              rs.addr,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		rs.logger.Info("🌍 REST API слушает %s", rs.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package acebot

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	apiPrefix            = "/api"
	apiHealthCheck       = "/healthz"
	apiPathStatus        = "/status"
	apiPathRebuild       = "/rebuild"
	apiPathUserIgnore    = "/users/:id/ignored"
	xRequestIDHeader     = "X-Request-ID"
	authorizationHeader  = "Authorization"
	bearerAuthPrefix     = "Bearer "
	apiShutdownDeadline  = 5 * time.Second
	apiRebuildMaxRuntime = 5 * time.Minute
)

type httpReply struct {
	Message string `json:"message"`
}

type httpError struct {
	Error string `json:"error"`
}

// API is the bot's status/admin HTTP server: a health check, a status
// snapshot, and token-protected corpus/user mutations.
type API struct {
	bot              *AceBot
	config           *APIConfig
	httpServer       *http.Server
	listener         net.Listener
	engine           *gin.Engine
	requestMetrics   map[string]int
	requestMetricsMu sync.Mutex
	logger           *slog.Logger
}

func newAPI(bot *AceBot, config *APIConfig) *API {
	apiLogger := slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "api")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		bot:            bot,
		config:         config,
		engine:         r,
		requestMetrics: map[string]int{},
		logger:         apiLogger,
	}
	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		metricMiddleware(api),
	)

	r.GET(apiHealthCheck, api.healthCheck)

	group := r.Group(apiPrefix)
	group.GET(apiPathStatus, api.getStatus)

	protected := r.Group(apiPrefix)
	protected.Use(bearerAuthMiddleware(config.Token))
	protected.POST(apiPathRebuild, api.rebuildCorpus)
	protected.PATCH(apiPathUserIgnore, api.setUserIgnored)

	return api
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, httpReply{Message: "ok"})
}

// apiStatus is the status snapshot payload.
type apiStatus struct {
	Uptime           string     `json:"uptime"`
	DiscordConnected bool       `json:"discord_connected"`
	CommandsHandled  int64      `json:"commands_handled"`
	ActivePagers     int        `json:"active_pagers"`
	Corpus           DocsCounts `json:"corpus"`
	Users            int64      `json:"users"`
	FeedWatermark    time.Time  `json:"feed_watermark"`
	FeedTicks        int64      `json:"feed_ticks"`
	FeedEmitted      int64      `json:"feed_emitted"`
}

func (a *API) getStatus(c *gin.Context) {
	counts, err := a.bot.store.Counts()
	if err != nil {
		ginContextLogger(c).Error("error loading corpus counts", tint.Err(err))
		ginReplyError(c, "error loading corpus counts")
		return
	}
	userCount, err := a.bot.users.Count()
	if err != nil {
		ginContextLogger(c).Error("error counting users", tint.Err(err))
		ginReplyError(c, "error counting users")
		return
	}

	c.JSON(
		http.StatusOK, apiStatus{
			Uptime:           time.Since(a.bot.startedAt).Round(time.Second).String(),
			DiscordConnected: a.bot.discord.connected.Load(),
			CommandsHandled:  a.bot.metricCommandsHandled.Load(),
			ActivePagers:     a.bot.pagers.Len(),
			Corpus:           counts,
			Users:            userCount,
			FeedWatermark:    a.bot.feed.Watermark(),
			FeedTicks:        a.bot.feed.metricTicks.Load(),
			FeedEmitted:      a.bot.feed.metricEmitted.Load(),
		},
	)
}

// rebuildCorpus re-ingests the docs index and replaces the corpus, same
// as the owner-only build command.
func (a *API) rebuildCorpus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(
		c.Request.Context(), apiRebuildMaxRuntime,
	)
	defer cancel()

	logger := ginContextLogger(c)
	entries, err := a.bot.corpusSource.Entries(ctx)
	if err != nil {
		logger.Error("error fetching docs index", tint.Err(err))
		ginReplyError(c, "error fetching docs index")
		return
	}
	if err = a.bot.store.Rebuild(ctx, entries); err != nil {
		logger.Error("error rebuilding corpus", tint.Err(err))
		ginReplyError(c, "error rebuilding corpus")
		return
	}
	ginReplyMessage(c, fmt.Sprintf("corpus rebuilt from %d entries", len(entries)))
}

func (a *API) setUserIgnored(c *gin.Context) {
	var payload struct {
		Ignored bool `json:"ignored"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest, httpError{Error: "invalid payload"},
		)
		return
	}
	userID := c.Param("id")
	if err := a.bot.users.SetIgnored(userID, payload.Ignored); err != nil {
		ginContextLogger(c).Error("error updating user", tint.Err(err))
		ginReplyError(c, "error updating user")
		return
	}
	ginReplyMessage(c, "user updated")
}

// Serve starts the API listener and blocks until the context is
// cancelled, then shuts the server down gracefully.
func (a *API) Serve(ctx context.Context) error {
	listener, err := net.Listen(a.config.ListenNetwork, a.config.Listen)
	if err != nil {
		return fmt.Errorf("error creating api listener: %w", err)
	}
	a.listener = listener
	a.logger.Info("api server listening", "listen", a.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		serveErr := a.httpServer.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case serveErr := <-errCh:
		return serveErr
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), apiShutdownDeadline,
	)
	defer cancel()
	if err = a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("error shutting down api server", tint.Err(err))
	}
	return nil
}

// bearerAuthMiddleware rejects requests whose Authorization header
// doesn't carry the configured token. An empty configured token
// disables the protected routes entirely.
func bearerAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(
				http.StatusForbidden,
				httpError{Error: "api token not configured"},
			)
			return
		}
		header := c.GetHeader(authorizationHeader)
		provided, ok := strings.CutPrefix(header, bearerAuthPrefix)
		if !ok || subtle.ConstantTimeCompare(
			[]byte(provided), []byte(token),
		) != 1 {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized, httpError{Error: "unauthorized"},
			)
			return
		}
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		if requestID, exists := c.Get(xRequestIDHeader); exists {
			c.Header(xRequestIDHeader, requestID.(string))
		}
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	var requestLogger *slog.Logger
	logger, ok := c.Get(string(loggerContextKey))
	if ok {
		requestLogger, ok = logger.(*slog.Logger)
		if ok {
			return requestLogger
		}
	}
	requestLogger = slog.Default()
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery
	if raw != "" {
		path = path + "?" + raw
	}

	requestLogger = requestLogger.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
			"referer", c.Request.Referer(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware returns a Gin middleware function for logging HTTP
// requests.
//
// It logs the request method, path, remote address, user agent, referer,
// and the duration of the request. If there are any errors, it logs them
// as well.
func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf(
					"%s %s finished with errors",
					c.Request.Method,
					c.Request.URL,
				),
				"duration", latency,
				"errors", errs,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		} else {
			requestLogger.Info(
				fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
				"duration", latency,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		}
	}
}

// metricMiddleware returns a Gin middleware function for tracking API
// request metrics.
//
// It increments the request count for each unique combination of HTTP
// method and URL path.
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Next()

		a.requestMetricsMu.Lock()
		defer a.requestMetricsMu.Unlock()

		key := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		_, ok := a.requestMetrics[key]
		if !ok {
			a.requestMetrics[key] = 1
			return
		}
		a.requestMetrics[key]++
	}
}

// ginReplyMessage sends a JSON response with a message,
// with HTTP status code 200, via the gin context.
func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

// ginReplyError sends a JSON response with a message,
// with HTTP status code 500, via the gin context.
func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/catering/internal/authorization"
	"github.com/smallbiznis/catering/internal/config"
	"github.com/smallbiznis/catering/internal/notification/domain"
	"github.com/smallbiznis/catering/internal/observability"
	obsmiddleware "github.com/smallbiznis/catering/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/catering/internal/observability/metrics"
	obstracing "github.com/smallbiznis/catering/internal/observability/tracing"
	"github.com/smallbiznis/catering/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type deliveryLimiter interface {
	Enabled() bool
	AllowUser(ctx context.Context, userID string) (*ratelimit.RateLimitResult, error)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	verifier        *TokenVerifier
	notificationSvc domain.Service
	authzSvc        authorization.Service
	obsMetrics      *obsmetrics.Metrics
	limiter         deliveryLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	NotificationSvc domain.Service
	AuthzSvc        authorization.Service
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
	Limiter         *ratelimit.DeliveryLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		verifier:        NewTokenVerifier(p.Cfg.AuthJWTSecret, p.Cfg.AuthJWTIssuer),
		notificationSvc: p.NotificationSvc,
		authzSvc:        p.AuthzSvc,
		obsMetrics:      p.ObsMetrics,
	}
	if p.Limiter.Enabled() {
		svc.limiter = p.Limiter
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.BearerAuthRequired(), s.DeliveryRateLimit())

	api.GET("/notifications", s.ListNotifications)
	api.POST("/notifications/read", s.MarkNotificationsRead)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.BearerAuthRequired())

	admin.GET("/notification-settings",
		s.authorizeAction(authorization.ObjectNotificationSetting, authorization.ActionNotificationSettingView),
		s.ListNotificationSettings,
	)
	admin.PUT("/notification-settings",
		s.authorizeAction(authorization.ObjectNotificationSetting, authorization.ActionNotificationSettingManage),
		s.UpsertNotificationSetting,
	)
	admin.POST("/notification-jobs/:name/run",
		s.authorizeAction(authorization.ObjectNotificationJob, authorization.ActionNotificationJobRun),
		s.RunNotificationJob,
	)
}

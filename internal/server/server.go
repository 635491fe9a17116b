package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/minutepay/minutepay/internal/audit"
	"github.com/minutepay/minutepay/internal/call"
	calldomain "github.com/minutepay/minutepay/internal/call/domain"
	"github.com/minutepay/minutepay/internal/chargeback"
	chargebackdomain "github.com/minutepay/minutepay/internal/chargeback/domain"
	"github.com/minutepay/minutepay/internal/config"
	"github.com/minutepay/minutepay/internal/events"
	"github.com/minutepay/minutepay/internal/fraud"
	frauddomain "github.com/minutepay/minutepay/internal/fraud/domain"
	"github.com/minutepay/minutepay/internal/gift"
	giftdomain "github.com/minutepay/minutepay/internal/gift/domain"
	"github.com/minutepay/minutepay/internal/ledger"
	ledgerdomain "github.com/minutepay/minutepay/internal/ledger/domain"
	"github.com/minutepay/minutepay/internal/observability"
	"github.com/minutepay/minutepay/internal/payout"
	payoutdomain "github.com/minutepay/minutepay/internal/payout/domain"
	"github.com/minutepay/minutepay/internal/wallet"
	walletdomain "github.com/minutepay/minutepay/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	events.Module,
	ledger.Module,
	fraud.Module,
	call.Module,
	gift.Module,
	wallet.Module,
	chargeback.Module,
	payout.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	genID         *snowflake.Node
	ledgerSvc     ledgerdomain.Service
	callSvc       calldomain.Service
	giftSvc       giftdomain.Service
	walletSvc     walletdomain.Service
	fraudSvc      frauddomain.Service
	chargebackSvc chargebackdomain.Service
	payoutSvc     payoutdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	GenID         *snowflake.Node
	LedgerSvc     ledgerdomain.Service
	CallSvc       calldomain.Service
	GiftSvc       giftdomain.Service
	WalletSvc     walletdomain.Service
	FraudSvc      frauddomain.Service
	ChargebackSvc chargebackdomain.Service
	PayoutSvc     payoutdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		ledgerSvc:     p.LedgerSvc,
		callSvc:       p.CallSvc,
		giftSvc:       p.GiftSvc,
		walletSvc:     p.WalletSvc,
		fraudSvc:      p.FraudSvc,
		chargebackSvc: p.ChargebackSvc,
		payoutSvc:     p.PayoutSvc,
	}
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1", RequireIdentity())

	v1.POST("/accounts", s.createAccount)

	calls := v1.Group("/calls")
	calls.POST("", s.createCall)
	calls.POST("/:id/start", s.startCall)
	calls.POST("/:id/end", s.endCall)
	calls.POST("/:id/cancel", s.cancelCall)
	calls.GET("/:id/quote", s.quoteCall)
	calls.GET("/:id", s.getCall)

	gifts := v1.Group("/gifts")
	gifts.GET("", s.listGifts)
	gifts.POST("/send", s.sendGift)

	walletGroup := v1.Group("/wallet")
	walletGroup.POST("/deposit", s.deposit)
	walletGroup.POST("/withdraw", s.withdraw)
	walletGroup.GET("/balance", s.balance)
	walletGroup.GET("/entries", s.entries)

	fraudGroup := v1.Group("/fraud", RequireRole(RoleOperator, RoleAdmin))
	fraudGroup.POST("/flags", s.createFlag)
	fraudGroup.POST("/flags/:id/review", s.reviewFlag)

	chargebacks := v1.Group("/chargebacks")
	chargebacks.POST("", s.fileChargeback)
	chargebacks.POST("/:id/decide", RequireRole(RoleOperator, RoleAdmin), s.decideChargeback)

	payouts := v1.Group("/payouts")
	payouts.GET("", s.listPayouts)
	payouts.POST("/sweep", RequireRole(RoleAdmin), s.runSweep)
}

func run(lc fx.Lifecycle, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil || id == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func parseID(raw string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

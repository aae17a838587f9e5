package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/solarman-proxy/internal/app"
	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
	"github.com/taoyao-code/solarman-proxy/internal/httpserver"
	"github.com/taoyao-code/solarman-proxy/internal/metrics"
	"github.com/taoyao-code/solarman-proxy/internal/session"
)

// Version 构建版本，由 -ldflags 注入
var Version = "dev"

// Run 统一启动流程，阻塞到 ctx 结束后优雅关闭
// 启动顺序：基础组件 -> Redis -> 会话 -> HTTP -> 监听器 -> 串口
func Run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	serverID := app.GenerateServerID()
	log = log.With(zap.String("server_id", serverID))
	log.Info("starting solarman proxy", zap.String("version", Version))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	ready := app.NewReady()

	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ========== 阶段2: Redis（可选，失败直接返回）==========
	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	observers := []session.Observer{app.NewSessionMetrics(appm)}
	if redisClient != nil {
		defer redisClient.Close()
	}
	// 后台任务先于 Redis 关闭退出
	defer func() {
		cancel()
		wg.Wait()
	}()
	if redisClient != nil {
		pub := app.NewStatusPublisher(redisClient, cfg, serverID, log)
		observers = append(observers, pub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(runCtx)
		}()
		log.Info("logger status publisher started", zap.String("key", pub.Key()))
	}

	// ========== 阶段3: logger 会话 ==========
	sess := app.NewSession(cfg.Logger, log, observers...)
	defer sess.Disconnect()
	// 首次连接失败不阻止启动：后续请求按需重连
	if err := sess.Connect(runCtx); err != nil {
		log.Warn("initial logger connect failed, will retry on demand", zap.Error(err))
	}
	ready.SetSessionReady(true)

	// ========== 阶段4: HTTP（非阻塞）==========
	healthAgg := app.NewHealthAggregator(sess)
	app.AddRedisChecker(healthAgg, redisClient)

	var httpSrv *httpserver.Server
	if cfg.HTTP.Enable {
		var metricsHandler http.Handler
		if cfg.Metrics.Enable {
			metricsHandler = metrics.Handler(reg)
		}
		httpSrv = app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metricsHandler, ready.Ready)
		httpSrv.Register(func(r gin.IRoutes) {
			app.RegisterHealthRoutes(r, healthAgg)
		})
		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", zap.Error(err))
			}
		}()
		log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))
	}

	// ========== 阶段5: 代理监听器 ==========
	tcpSrv := app.NewTCPServer(cfg.Proxy, sess, log)
	tcpSrv.SetMetricsCallbacks(app.ListenerCallbacks(appm))
	if err := tcpSrv.Start(); err != nil {
		log.Error("proxy listener start failed", zap.Error(err))
		shutdownHTTP(httpSrv, log)
		return err
	}
	ready.SetListenerReady(true)
	app.AddTCPChecker(healthAgg, tcpSrv)

	// ========== 阶段6: 串口前端（可选）==========
	if bridge := app.NewSerialBridge(cfg.Serial, tcpSrv, log); bridge != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bridge.Run(runCtx); err != nil {
				log.Error("serial bridge stopped", zap.Error(err), zap.Uint64("frames", bridge.Frames()))
				return
			}
			log.Info("serial bridge stopped", zap.Uint64("frames", bridge.Frames()))
		}()
		log.Info("serial bridge started", zap.String("port", cfg.Serial.Port))
	}

	log.Info("all services ready, waiting for connections")

	// ========== 阶段7: 等待关闭 ==========
	<-ctx.Done()
	log.Info("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := tcpSrv.Shutdown(sctx); err != nil {
		log.Warn("proxy listener shutdown", zap.Error(err))
	}
	log.Info("proxy listener stopped")
	shutdownHTTP(httpSrv, log)

	log.Info("shutdown complete")
	return nil
}

func shutdownHTTP(srv *httpserver.Server, log *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("http server stopped")
}

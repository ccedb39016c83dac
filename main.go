package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SProject/global"
	"SProject/logger"
	"SProject/module/directory"
	"SProject/module/talk"
	"SProject/module/talk/handler"
	"SProject/module/talk/seq"
	"SProject/service/auth"
	"SProject/service/chat"
	"SProject/service/mgo"
	"SProject/service/natsx"
	rediss "SProject/service/storage/redis"
	ids "SProject/tools/ids"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := global.Load()
	if cfg.JWTSecret == "" {
		logger.Error("TALK_JWT_SECRET is required")
		os.Exit(1)
	}
	ids.SetNodeID(int64(cfg.NodeID))

	if err := mgo.InitMongo(mgo.Config{URI: cfg.MongoURI, Database: cfg.MongoDB}); err != nil {
		logger.Errorf("init mongo: %v", err)
		os.Exit(1)
	}
	if err := rediss.InitRedis(rediss.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}); err != nil {
		logger.Errorf("init redis: %v", err)
		os.Exit(1)
	}

	db := mgo.GetDB()
	alloc := seq.NewRedisAllocator(rediss.GetRedis(), db)
	store := talk.NewMongoStore(db, alloc)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureIndexes(ctx); err != nil {
			cancel()
			logger.Errorf("ensure indexes: %v", err)
			os.Exit(1)
		}
		cancel()
	}
	tracker := talk.NewTracker(store, store)
	dir := directory.NewMongoResolver(db)
	authn := auth.NewJWT([]byte(cfg.JWTSecret))

	srv := chat.NewServer(chat.ServerOptions{GatewayID: cfg.GatewayID}, authn, dir, store, tracker)
	defer srv.Close()

	if len(cfg.NatsServers) > 0 {
		relay, err := natsx.NewRelay(natsx.Config{
			Servers: cfg.NatsServers,
			Name:    cfg.GatewayID,
			Subject: cfg.NatsSubject,
		})
		if err != nil {
			logger.Errorf("connect nats: %v", err)
			os.Exit(1)
		}
		if err := srv.AttachRelay(relay); err != nil {
			logger.Errorf("attach relay: %v", err)
			os.Exit(1)
		}
		logger.Infof("relay enabled: servers=%v", cfg.NatsServers)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", srv.HandleWS)
	handler.NewAPI(srv).Register(r)

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		logger.Infof("talk gateway listening on %s (gw=%s)", cfg.Addr, cfg.GatewayID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("listen: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	_ = rediss.CloseRedis()
	_ = mgo.CloseMongo(ctx)
}

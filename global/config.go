package global

import (
	"os"
	"strconv"
	"strings"

	"SProject/logger"

	"github.com/joho/godotenv"
)

// AppConfig 网关进程配置；来源：环境变量（可选 .env 文件）。
type AppConfig struct {
	Addr      string // HTTP/WS 监听地址
	GatewayID string // 跨网关转发的 origin 标识
	NodeID    int    // 雪花ID节点号（多实例部署时必须互异）

	JWTSecret string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsServers []string // 空 -> 不挂 Relay，单网关模式
	NatsSubject string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("config: bad int for %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

// Load 读取配置；.env 不存在不算错。
func Load() *AppConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnf("config: load .env: %v", err)
	}

	cfg := &AppConfig{
		Addr:          getenv("TALK_ADDR", ":8081"),
		GatewayID:     getenv("TALK_GATEWAY_ID", "gw-"+hostID()),
		NodeID:        getenvInt("TALK_NODE_ID", 1),
		JWTSecret:     getenv("TALK_JWT_SECRET", ""),
		MongoURI:      getenv("TALK_MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDB:       getenv("TALK_MONGO_DB", "talk"),
		RedisAddr:     getenv("TALK_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getenv("TALK_REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("TALK_REDIS_DB", 0),
		NatsSubject:   getenv("TALK_NATS_SUBJECT", ""),
	}
	if raw := getenv("TALK_NATS_SERVERS", ""); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.NatsServers = append(cfg.NatsServers, s)
			}
		}
	}
	return cfg
}

func hostID() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "local"
	}
	return h
}

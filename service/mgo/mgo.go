package mgo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	mongoOnce sync.Once
	mongoMgr  *MongoManager
)

type MongoManager struct {
	client *mongo.Client
	db     *mongo.Database
}

// Config Mongo 连接配置
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// InitMongo 初始化 Mongo 管理器（单例）；连接失败直接返回错误，
// 消息存储是硬依赖，不做降级。
func InitMongo(c Config) error {
	var initErr error
	mongoOnce.Do(func() {
		if c.Timeout <= 0 {
			c.Timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
		defer cancel()

		cli, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
		if err != nil {
			initErr = err
			return
		}
		if err := cli.Ping(ctx, readpref.Primary()); err != nil {
			initErr = err
			return
		}
		mongoMgr = &MongoManager{client: cli, db: cli.Database(c.Database)}
	})
	return initErr
}

// GetDB 获取业务库
func GetDB() *mongo.Database {
	if mongoMgr == nil {
		panic("Mongo not initialized, call InitMongo first")
	}
	return mongoMgr.db
}

// CloseMongo 断开连接
func CloseMongo(ctx context.Context) error {
	if mongoMgr == nil || mongoMgr.client == nil {
		return nil
	}
	return mongoMgr.client.Disconnect(ctx)
}

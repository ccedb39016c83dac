package natsx

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"SProject/logger"

	"github.com/nats-io/nats.go"
)

const DefaultSubject = "talk.msg"

// Config 客户端配置
type Config struct {
	Servers       []string
	Name          string
	Subject       string // 会话帧广播主题；空用 DefaultSubject
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// envelope 跨网关帧信封；Frame 原样透传，对端不重新编码。
type envelope struct {
	Origin string          `json:"origin"`
	ConvID string          `json:"convId"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay 基于 NATS Core 的跨网关转发。
// 无持久化语义：离线订阅者靠 REST 历史拉取补齐，转发只服务在线推送。
type Relay struct {
	nc      *nats.Conn
	subject string

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewRelay(cfg Config) (*Relay, error) {
	if len(cfg.Servers) == 0 {
		return nil, nats.ErrNoServers
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &Relay{nc: nc, subject: cfg.Subject}, nil
}

func (r *Relay) Publish(_ context.Context, origin, convID string, frame []byte) error {
	b, err := json.Marshal(&envelope{Origin: origin, ConvID: convID, Frame: frame})
	if err != nil {
		return err
	}
	return r.nc.Publish(r.subject, b)
}

func (r *Relay) Subscribe(handler func(origin, convID string, frame []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return nil
	}
	sub, err := r.nc.Subscribe(r.subject, func(m *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			logger.Warnf("relay: bad envelope: %v", err)
			return
		}
		handler(env.Origin, env.ConvID, env.Frame)
	})
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

func (r *Relay) Close() {
	r.mu.Lock()
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
		r.sub = nil
	}
	r.mu.Unlock()
	if r.nc != nil {
		r.nc.Close()
	}
}

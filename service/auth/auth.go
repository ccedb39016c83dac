package auth

import (
	"context"
	"strings"
	"sync"

	"SProject/module/directory"
	errs "SProject/tools/errs"
	security "SProject/tools/security"
)

// Authenticator 鉴权桥：不透明凭证 -> 主体。
// REST 每次调用都走一遍；WebSocket 连接只在握手后的 authenticate 帧走一遍。
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*directory.Principal, error)
}

// ===== JWT 实现 =====

type JWTAuthenticator struct {
	opts security.Options
}

func NewJWT(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{opts: security.DefaultOptions(secret)}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (*directory.Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, errs.ErrUnauthenticated.WrapMsg("missing credential")
	}
	claims, err := security.Verify(a.opts, credential)
	if err != nil {
		return nil, errs.ErrUnauthenticated.WrapMsg(err.Error())
	}
	return &directory.Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

// ===== 静态令牌实现（单测/本地联调） =====

type StaticAuthenticator struct {
	mu     sync.RWMutex
	tokens map[string]directory.Principal
}

func NewStatic() *StaticAuthenticator {
	return &StaticAuthenticator{tokens: make(map[string]directory.Principal)}
}

func (a *StaticAuthenticator) Put(token string, p directory.Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = p
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, credential string) (*directory.Principal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.tokens[credential]
	if !ok {
		return nil, errs.ErrUnauthenticated.WrapMsg("unknown token")
	}
	return &p, nil
}

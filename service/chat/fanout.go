package chat

import (
	"sync"

	"SProject/logger"
	safe "SProject/tools/safe"
)

type pushTask struct {
	conn *WsConn
	data []byte
}

// Fanout 推送工作池：落库完成后才进入扇出，投递失败只影响单个连接。
// OnDrop 由 Server 注入，把打不进队列/已死的连接摘掉。
type Fanout struct {
	tasks  chan pushTask
	wg     sync.WaitGroup
	once   sync.Once
	OnDrop func(w *WsConn, err error)
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 8
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{tasks: make(chan pushTask, queue)}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		safe.SafeGo(func() {
			defer f.wg.Done()
			f.worker()
		})
	}
	return f
}

func (f *Fanout) worker() {
	for t := range f.tasks {
		if err := t.conn.Push(t.data); err != nil {
			logger.Warnf("push failed, dropping conn: connID=%s err=%v", t.conn.ConnID, err)
			if f.OnDrop != nil {
				f.OnDrop(t.conn, err)
			}
		}
	}
}

// Dispatch 把同一份载荷分发给一批连接。
// 工作池队列打满时降级为同步投递，不丢消息。
func (f *Fanout) Dispatch(data []byte, conns []*WsConn) {
	for _, w := range conns {
		select {
		case f.tasks <- pushTask{conn: w, data: data}:
		default:
			if err := w.Push(data); err != nil {
				logger.Warnf("push failed, dropping conn: connID=%s err=%v", w.ConnID, err)
				if f.OnDrop != nil {
					f.OnDrop(w, err)
				}
			}
		}
	}
}

func (f *Fanout) Close() {
	f.once.Do(func() { close(f.tasks) })
	f.wg.Wait()
}

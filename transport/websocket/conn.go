package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kochabx/wsgate/channel"
	"github.com/kochabx/wsgate/errors"
	"github.com/kochabx/wsgate/log"
)

var (
	ErrConnClosed     = errors.ServiceUnavailable("connection closed")
	ErrSendQueueFull  = errors.ServiceUnavailable("send queue full")
	ErrDispatcherDown = errors.ServiceUnavailable("dispatcher closed")
)

var _ channel.Conn = (*conn)(nil)

// conn 服务端的一个物理连接。读由 readLoop 单协程完成，
// 写经过队列交给 writeLoop，二者之外不直接访问 ws。
type conn struct {
	id     string
	ws     *websocket.Conn
	cfg    Config
	logger *log.Logger

	queue     chan []byte
	done      chan struct{}
	flushed   chan struct{}
	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, cfg Config, logger *log.Logger) *conn {
	return &conn{
		id:      id,
		ws:      ws,
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan []byte, cfg.SendQueueSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
}

func (c *conn) ID() string {
	return c.id
}

// Send 把一帧放入发送队列，不阻塞。队列已满说明对端过慢，直接断开。
func (c *conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.queue <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.logger.Warn().Str("client_id", c.id).Msg("send queue full, closing connection")
		c.close()
		return ErrSendQueueFull
	}
}

// close 通知写协程发完已排队的帧后关闭连接
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// wait 等待写协程退出
func (c *conn) wait() {
	<-c.flushed
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		close(c.flushed)
	}()

	for {
		select {
		case data := <-c.queue:
			if err := c.write(websocket.BinaryMessage, data); err != nil {
				c.logger.Debug().Err(err).Str("client_id", c.id).Msg("write failed")
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain 关闭前发出队列中剩余的帧
func (c *conn) drain() {
	for {
		select {
		case data := <-c.queue:
			if err := c.write(websocket.BinaryMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// readLoop 按到达顺序把消息交给 handle，连接出错或关闭时返回
func (c *conn) readLoop(handle func(kind channel.MessageKind, data []byte)) {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug().Err(err).Str("client_id", c.id).Msg("read failed")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		handle(channel.MessageKind(messageType), data)
	}
}

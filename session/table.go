package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kochabx/wsgate/log"
	"github.com/kochabx/wsgate/metrics"
)

// entry 会话记录，只在持有 Table.mu 时访问
type entry struct {
	token      string
	seriesID   string
	constToken string
	// expiry 为零值表示永不过期
	expiry  time.Time
	timeout time.Duration
	data    map[string]any
	clients map[string]struct{}
}

func (e *entry) info() Info {
	return Info{
		Token:      e.token,
		SeriesID:   e.seriesID,
		ConstToken: e.constToken,
		Expiry:     e.expiry,
		Timeout:    e.timeout,
		Data:       e.data,
		Clients:    len(e.clients),
	}
}

// Info 会话快照
type Info struct {
	Token      string
	SeriesID   string
	ConstToken string
	// Expiry 为零值表示永不过期
	Expiry  time.Time
	Timeout time.Duration
	Data    map[string]any
	Clients int
}

// binding 客户端到会话的绑定
type binding struct {
	token      string
	constToken string
}

type removal struct {
	info   Info
	reason string
}

// Table 会话表，持有全部会话、客户端绑定与过期索引。
// 每个公开方法是一次临界区，移除钩子在解锁后调用。
type Table struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	logger      *log.Logger
	metrics     *metrics.Metrics
	withClients bool
	hooks       []func(Info)

	sessions map[string]*entry  // token -> 会话
	internal map[string]string  // constToken -> token
	clients  map[string]binding // clientId -> 绑定
	index    *expiryIndex
	timer    clockwork.Timer
	// closed 后不再安排定时器
	closed bool
}

// New 创建会话表
func New(opts ...Option) *Table {
	t := &Table{
		clock:    clockwork.NewRealClock(),
		sessions: make(map[string]*entry),
		internal: make(map[string]string),
		clients:  make(map[string]binding),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = log.OrGlobal(t.logger).Module("session")
	t.index = newExpiryIndex(t.withClients)
	return t
}

// OnRemove 注册会话移除钩子
func (t *Table) OnRemove(fn func(Info)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}

// Create 创建会话。timeout 为 0 表示永不过期。
func (t *Table) Create(token, seriesID, constToken string, timeout time.Duration, data map[string]any) error {
	t.mu.Lock()
	if _, ok := t.sessions[token]; ok {
		t.mu.Unlock()
		return ErrDuplicateToken
	}
	if _, ok := t.internal[constToken]; ok {
		t.mu.Unlock()
		return ErrDuplicateToken
	}
	if data == nil {
		data = make(map[string]any)
	}
	e := &entry{
		token:      token,
		seriesID:   seriesID,
		constToken: constToken,
		timeout:    timeout,
		data:       data,
		clients:    make(map[string]struct{}),
	}
	if timeout > 0 {
		e.expiry = t.clock.Now().Add(timeout)
	}
	t.sessions[token] = e
	t.internal[constToken] = token
	t.index.insert(e)
	t.schedule()
	n := len(t.sessions)
	t.mu.Unlock()

	t.metrics.SetSessions(n)
	t.logger.Debug().Str("const_token", constToken).Dur("timeout", timeout).Msg("session created")
	return nil
}

// find 精确匹配 token，seriesID 非空时还必须匹配系列号
func (t *Table) find(token, seriesID string) *entry {
	e, ok := t.sessions[token]
	if !ok || (seriesID != "" && e.seriesID != seriesID) {
		return nil
	}
	return e
}

// Find 查找会话。seriesID 为空表示不校验系列号；
// 令牌存在但系列号不同视为不存在。
func (t *Table) Find(token, seriesID string) (Info, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.find(token, seriesID); e != nil {
		return e.info(), true
	}
	return Info{}, false
}

// update 在修改可能影响排序的字段前把会话移出索引，修改后刷新过期时间并重新插入
func (t *Table) update(e *entry, fn func()) {
	finite := !e.expiry.IsZero()
	if finite {
		t.index.remove(e)
	}
	fn()
	if finite {
		e.expiry = t.clock.Now().Add(e.timeout)
		t.index.insert(e)
	}
	t.schedule()
}

// Touch 延长会话有效期，永不过期的会话不受影响
func (t *Table) Touch(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.find(token, "")
	if e == nil {
		return false
	}
	if !e.expiry.IsZero() {
		t.update(e, func() {})
	}
	return true
}

// KeepAlive 同 Touch
func (t *Table) KeepAlive(token string) bool {
	return t.Touch(token)
}

// removeLocked 从所有索引中移除会话并驱逐它的客户端
func (t *Table) removeLocked(token, reason string) (removal, bool) {
	e, ok := t.sessions[token]
	if !ok {
		return removal{}, false
	}
	delete(t.sessions, token)
	delete(t.internal, e.constToken)
	t.index.remove(e)
	for cid := range e.clients {
		delete(t.clients, cid)
	}
	return removal{info: e.info(), reason: reason}, true
}

// notify 在解锁后通知钩子与指标
func (t *Table) notify(removed []removal, hooks []func(Info), n int) {
	for _, r := range removed {
		t.logger.Debug().Str("const_token", r.info.ConstToken).Str("reason", r.reason).Msg("session removed")
		t.metrics.SessionRemoved(r.reason)
		for _, fn := range hooks {
			fn(r.info)
		}
	}
	if len(removed) > 0 {
		t.metrics.SetSessions(n)
	}
}

// unlock 释放锁并派发移除通知
func (t *Table) unlock(removed []removal) {
	hooks := t.hooks
	n := len(t.sessions)
	t.mu.Unlock()
	t.notify(removed, hooks, n)
}

// Remove 移除会话，幂等
func (t *Table) Remove(token string) bool {
	return t.RemoveWithReason(token, metrics.ReasonLogout)
}

// RemoveWithReason 移除会话并以 reason 记录
func (t *Table) RemoveWithReason(token, reason string) bool {
	if token == "" {
		return false
	}
	t.mu.Lock()
	r, ok := t.removeLocked(token, reason)
	var removed []removal
	if ok {
		removed = append(removed, r)
		t.schedule()
	}
	t.unlock(removed)
	return ok
}

func (t *Table) removeSeriesLocked(seriesID, reason string) []removal {
	var tokens []string
	for token, e := range t.sessions {
		if e.seriesID == seriesID {
			tokens = append(tokens, token)
		}
	}
	removed := make([]removal, 0, len(tokens))
	for _, token := range tokens {
		if r, ok := t.removeLocked(token, reason); ok {
			removed = append(removed, r)
		}
	}
	t.schedule()
	return removed
}

// RemoveSeriesID 移除系列号下的全部会话，返回是否有会话被移除
func (t *Table) RemoveSeriesID(seriesID string) bool {
	t.mu.Lock()
	removed := t.removeSeriesLocked(seriesID, metrics.ReasonTheft)
	t.unlock(removed)
	return len(removed) > 0
}

// RegisterClientToken 把客户端绑定到 pair 对应的会话。
// 系列号存在但令牌不匹配时清除整个系列并返回 ErrTheftSuspected。
func (t *Table) RegisterClientToken(pair Pair, clientID string) error {
	t.mu.Lock()
	if pair.Token == "" || pair.SeriesID == "" {
		t.mu.Unlock()
		return ErrNoSession
	}
	e := t.find(pair.Token, pair.SeriesID)
	if e == nil {
		removed := t.removeSeriesLocked(pair.SeriesID, metrics.ReasonTheft)
		t.unlock(removed)
		if len(removed) > 0 {
			t.metrics.TheftSuspected()
			t.logger.Warn().Str("client_id", clientID).Int("purged", len(removed)).
				Msg("token theft assumed, deleting all tokens that relate to this series")
			return ErrTheftSuspected
		}
		return ErrNoSession
	}

	if old, ok := t.clients[clientID]; ok {
		t.detachLocked(clientID, old)
	}
	t.clients[clientID] = binding{token: e.token, constToken: e.constToken}
	t.update(e, func() {
		e.clients[clientID] = struct{}{}
	})
	t.mu.Unlock()
	return nil
}

func (t *Table) detachLocked(clientID string, b binding) {
	delete(t.clients, clientID)
	if e := t.find(b.token, ""); e != nil {
		t.update(e, func() {
			delete(e.clients, clientID)
		})
	}
}

// UnregisterClientToken 解除客户端绑定
func (t *Table) UnregisterClientToken(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.clients[clientID]
	if !ok {
		return false
	}
	t.detachLocked(clientID, b)
	return true
}

// ClientToken 返回客户端所属会话的常量令牌
func (t *Table) ClientToken(clientID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.clients[clientID]
	return b.constToken, ok
}

// ValidClient 客户端是否仍绑定在某个会话上
func (t *Table) ValidClient(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.clients[clientID]
	return ok
}

// ConstToken 由 cookie 中的令牌得到常量令牌
func (t *Table) ConstToken(token string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.find(token, ""); e != nil {
		return e.constToken, true
	}
	return "", false
}

// InternalToken 由常量令牌得到内部令牌
func (t *Table) InternalToken(constToken string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token, ok := t.internal[constToken]
	return token, ok
}

// SessionData 返回常量令牌对应会话的数据
func (t *Table) SessionData(constToken string) (map[string]any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token, ok := t.internal[constToken]
	if !ok {
		return nil, false
	}
	return t.sessions[token].data, true
}

// ForceLogout 按常量令牌移除会话
func (t *Table) ForceLogout(constToken string) bool {
	token, ok := t.InternalToken(constToken)
	if !ok {
		return false
	}
	return t.RemoveWithReason(token, metrics.ReasonForced)
}

// Len 会话数量
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Expire 按序移除所有已过期的会话，遇到第一个不可过期的会话即停止
func (t *Table) Expire() int {
	t.mu.Lock()
	now := t.clock.Now()
	var victims []string
	t.index.ascend(func(e *entry) bool {
		if e.expiry.IsZero() || e.expiry.After(now) || !t.index.eligible(e) {
			return false
		}
		victims = append(victims, e.token)
		return true
	})
	removed := make([]removal, 0, len(victims))
	for _, token := range victims {
		if r, ok := t.removeLocked(token, metrics.ReasonExpired); ok {
			removed = append(removed, r)
		}
	}
	t.schedule()
	t.unlock(removed)
	return len(removed)
}

// SetExpiresWithActiveClients 切换有客户端的会话是否过期，策略变化时重建索引
func (t *Table) SetExpiresWithActiveClients(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.withClients == v {
		return
	}
	t.withClients = v
	t.index = t.index.rebuild(v)
	t.schedule()
}

// ExpiresWithActiveClients 返回当前策略
func (t *Table) ExpiresWithActiveClients() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.withClients
}

// NextExpiry 返回已安排的下一次过期时间
func (t *Table) NextExpiry() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.nextLocked()
	if e == nil {
		return time.Time{}, false
	}
	return e.expiry, true
}

// nextLocked 找到当前策略下第一个可过期的会话，跳过有客户端的会话
func (t *Table) nextLocked() *entry {
	var next *entry
	t.index.ascend(func(e *entry) bool {
		if e.expiry.IsZero() {
			return false
		}
		if !t.index.eligible(e) {
			return true
		}
		next = e
		return false
	})
	return next
}

// schedule 取消现有定时器，并为第一个可过期的会话安排唯一的定时器
func (t *Table) schedule() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.closed {
		return
	}
	next := t.nextLocked()
	if next == nil {
		return
	}
	delay := max(next.expiry.Sub(t.clock.Now())+time.Millisecond, time.Millisecond)
	t.timer = t.clock.AfterFunc(delay, func() {
		// 定时器回调可能在时钟内部锁中执行，另起 goroutine 清理
		go t.Expire()
	})
}

// Close 停止过期定时器，之后的操作不再重新安排。Expire 仍可手动调用。
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

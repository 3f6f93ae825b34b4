package session

import (
	"github.com/google/btree"
)

const indexDegree = 16

// expiryIndex 按有效过期时间排序的会话索引。
// 排序: 永不过期的排最后; 未开启 withClients 时有客户端的排在无客户端之后;
// 然后按过期时间; 最后按 (token, seriesId) 保证全序。
type expiryIndex struct {
	tree        *btree.BTreeG[*entry]
	withClients bool
}

func newExpiryIndex(withClients bool) *expiryIndex {
	x := &expiryIndex{withClients: withClients}
	x.tree = btree.NewG(indexDegree, x.less)
	return x
}

func (x *expiryIndex) less(a, b *entry) bool {
	an, bn := a.expiry.IsZero(), b.expiry.IsZero()
	switch {
	case an && bn:
		return lessKey(a, b)
	case an:
		return false
	case bn:
		return true
	}

	if !x.withClients {
		ac, bc := len(a.clients) > 0, len(b.clients) > 0
		if ac != bc {
			return bc
		}
	}
	if !a.expiry.Equal(b.expiry) {
		return a.expiry.Before(b.expiry)
	}
	return lessKey(a, b)
}

func lessKey(a, b *entry) bool {
	if a.token != b.token {
		return a.token < b.token
	}
	return a.seriesID < b.seriesID
}

func (x *expiryIndex) insert(e *entry) {
	x.tree.ReplaceOrInsert(e)
}

func (x *expiryIndex) remove(e *entry) {
	x.tree.Delete(e)
}

func (x *expiryIndex) len() int {
	return x.tree.Len()
}

// ascend 按序遍历，fn 返回 false 时停止
func (x *expiryIndex) ascend(fn func(*entry) bool) {
	x.tree.Ascend(fn)
}

// eligible 判断会话在当前策略下能否过期
func (x *expiryIndex) eligible(e *entry) bool {
	if e.expiry.IsZero() {
		return false
	}
	return x.withClients || len(e.clients) == 0
}

// rebuild 以新的策略重建索引
func (x *expiryIndex) rebuild(withClients bool) *expiryIndex {
	next := newExpiryIndex(withClients)
	x.ascend(func(e *entry) bool {
		next.insert(e)
		return true
	})
	return next
}

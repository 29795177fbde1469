// Package watchlist 维护自选基金集合并驱动定时刷新。
// 集合按代码去重、保序，所有改动走同一把锁，改完立刻整体落库。
package watchlist

import (
	"errors"
	"sync"

	"fund-watch-server/internal/models"
)

// 存储键
const (
	KeyFunds     = "funds"
	KeyRefreshMs = "refreshMs"
)

// Store 同步键值读写契约，由 store 包的 postgres 实现提供
type Store interface {
	GetJSON(key string, out any) bool
	SetJSON(key string, value any) error
	GetNumber(key string, fallback float64) float64
	SetString(key, value string) error
}

// ErrNoNewItems 这批候选一个都没加进来（全是已关注或全部拉取失败）
var ErrNoNewItems = errors.New("未添加任何新基金")

// DedupeByCode 按代码去重，保留首次出现的那条
func DedupeByCode(list []models.FundRecord) []models.FundRecord {
	seen := make(map[string]bool, len(list))
	out := make([]models.FundRecord, 0, len(list))
	for _, f := range list {
		if f.Code == "" || seen[f.Code] {
			continue
		}
		seen[f.Code] = true
		out = append(out, f)
	}
	return out
}

// Manager 自选集合的唯一修改入口
type Manager struct {
	mu    sync.Mutex
	funds []models.FundRecord
	store Store

	onUpdate     func([]models.FundRecord) // 任何成功落库后的新快照
	onMembership func()                    // 成员集合（代码）发生增删
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// OnUpdate 注册快照更新回调（启动期调用，不加锁）
func (m *Manager) OnUpdate(fn func([]models.FundRecord)) { m.onUpdate = fn }

// OnMembership 注册成员变化回调（启动期调用，不加锁）
func (m *Manager) OnMembership(fn func()) { m.onMembership = fn }

// Load 启动时读快照；存的副本万一有重复立即去重并回写
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var saved []models.FundRecord
	if !m.store.GetJSON(KeyFunds, &saved) || len(saved) == 0 {
		m.funds = nil
		return nil
	}
	deduped := DedupeByCode(saved)
	m.funds = deduped
	return m.store.SetJSON(KeyFunds, deduped)
}

// Add 把真正的新基金放到列表最前面；全是已关注的返回 ErrNoNewItems
func (m *Manager) Add(records []models.FundRecord) ([]models.FundRecord, error) {
	m.mu.Lock()
	fresh := make([]models.FundRecord, 0, len(records))
	for _, r := range records {
		if r.Code == "" || m.indexLocked(r.Code) >= 0 {
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		snap := cloneFunds(m.funds)
		m.mu.Unlock()
		return snap, ErrNoNewItems
	}
	next := DedupeByCode(append(fresh, m.funds...))
	m.funds = next
	err := m.store.SetJSON(KeyFunds, next)
	snap := cloneFunds(next)
	m.mu.Unlock()
	m.notify(snap, true)
	return snap, err
}

// Append 导入用：新代码排到现有列表后面，已有的原样保留。返回实际追加的条数
func (m *Manager) Append(records []models.FundRecord) (int, error) {
	m.mu.Lock()
	existing := make(map[string]bool, len(m.funds))
	for _, f := range m.funds {
		existing[f.Code] = true
	}
	next := cloneFunds(m.funds)
	appended := 0
	for _, r := range records {
		if r.Code == "" || existing[r.Code] {
			continue
		}
		existing[r.Code] = true
		next = append(next, r)
		appended++
	}
	if appended == 0 {
		m.mu.Unlock()
		return 0, nil
	}
	next = DedupeByCode(next)
	m.funds = next
	err := m.store.SetJSON(KeyFunds, next)
	snap := cloneFunds(next)
	m.mu.Unlock()
	m.notify(snap, true)
	return appended, err
}

// Remove 删除指定代码，代码不存在时等价于没发生
func (m *Manager) Remove(code string) ([]models.FundRecord, error) {
	m.mu.Lock()
	next := make([]models.FundRecord, 0, len(m.funds))
	changed := false
	for _, f := range m.funds {
		if f.Code == code {
			changed = true
			continue
		}
		next = append(next, f)
	}
	m.funds = next
	err := m.store.SetJSON(KeyFunds, next)
	snap := cloneFunds(next)
	m.mu.Unlock()
	if changed {
		m.notify(snap, true)
	}
	return snap, err
}

// MergeRefreshed 把一轮刷新的结果原位合并：同代码替换内容，位置不动；
// 不认识的代码兜底追加。整个合并加落库是一步原子操作。
func (m *Manager) MergeRefreshed(updates []models.FundRecord) ([]models.FundRecord, error) {
	m.mu.Lock()
	merged := cloneFunds(m.funds)
	appended := false
	for _, u := range updates {
		if u.Code == "" {
			continue
		}
		idx := -1
		for i := range merged {
			if merged[i].Code == u.Code {
				idx = i
				break
			}
		}
		if idx >= 0 {
			merged[idx] = u
		} else {
			merged = append(merged, u)
			appended = true
		}
	}
	merged = DedupeByCode(merged)
	m.funds = merged
	err := m.store.SetJSON(KeyFunds, merged)
	snap := cloneFunds(merged)
	m.mu.Unlock()
	m.notify(snap, appended)
	return snap, err
}

// List 返回当前集合的副本
func (m *Manager) List() []models.FundRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneFunds(m.funds)
}

// Codes 当前关注的代码快照，已去重
func (m *Manager) Codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]string, 0, len(m.funds))
	for _, f := range m.funds {
		codes = append(codes, f.Code)
	}
	return codes
}

func (m *Manager) Has(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexLocked(code) >= 0
}

func (m *Manager) indexLocked(code string) int {
	for i := range m.funds {
		if m.funds[i].Code == code {
			return i
		}
	}
	return -1
}

// notify 在锁外调用，回调里再进 Manager 也不会死锁
func (m *Manager) notify(snap []models.FundRecord, membership bool) {
	if m.onUpdate != nil {
		m.onUpdate(snap)
	}
	if membership && m.onMembership != nil {
		m.onMembership()
	}
}

func cloneFunds(list []models.FundRecord) []models.FundRecord {
	out := make([]models.FundRecord, len(list))
	copy(out, list)
	return out
}

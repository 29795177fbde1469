package watchlist

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"testing"

	"fund-watch-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore 测试用的内存键值存储，顺带记录写入次数
type memStore struct {
	mu           sync.Mutex
	data         map[string]string
	setJSONCalls int
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (s *memStore) GetJSON(key string, out any) bool {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false
	}
	return true
}

func (s *memStore) SetJSON(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = string(b)
	s.setJSONCalls++
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetNumber(key string, fallback float64) float64 {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fallback
	}
	return v
}

func (s *memStore) SetString(key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (s *memStore) jsonWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setJSONCalls
}

func fund(code, name string) models.FundRecord {
	return models.FundRecord{Code: code, Name: name, Holdings: []models.Holding{}}
}

func codesOf(list []models.FundRecord) []string {
	out := make([]string, 0, len(list))
	for _, f := range list {
		out = append(out, f.Code)
	}
	return out
}

func TestDedupeByCode(t *testing.T) {
	in := []models.FundRecord{
		fund("000001", "A"),
		fund("000002", "B"),
		fund("000001", "A-dup"),
		{Code: "", Name: "无代码"},
		fund("000002", "B-dup"),
	}
	out := DedupeByCode(in)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"000001", "000002"}, codesOf(out))
	// 保留首次出现的那条
	assert.Equal(t, "A", out[0].Name)
	assert.Equal(t, "B", out[1].Name)
}

func TestLoadDedupesAndWritesBack(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.SetJSON(KeyFunds, []models.FundRecord{
		fund("000001", "A"), fund("000001", "A-dup"), fund("000002", "B"),
	}))

	m := NewManager(st)
	require.NoError(t, m.Load())
	assert.Equal(t, []string{"000001", "000002"}, codesOf(m.List()))

	// 去重后的副本要立即回写
	var saved []models.FundRecord
	require.True(t, st.GetJSON(KeyFunds, &saved))
	assert.Len(t, saved, 2)
}

func TestLoadMissingKey(t *testing.T) {
	m := NewManager(newMemStore())
	require.NoError(t, m.Load())
	assert.Empty(t, m.List())
}

func TestLoadMalformedSnapshotFallsBack(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.SetString(KeyFunds, "{这不是合法的JSON"))
	m := NewManager(st)
	require.NoError(t, m.Load())
	assert.Empty(t, m.List())
}

func TestAddPrependsNewRecords(t *testing.T) {
	st := newMemStore()
	m := NewManager(st)
	_, err := m.Add([]models.FundRecord{fund("000001", "旧的")})
	require.NoError(t, err)

	list, err := m.Add([]models.FundRecord{fund("000002", "新的"), fund("000003", "更新的")})
	require.NoError(t, err)
	// 新基金排在已有的前面
	assert.Equal(t, []string{"000002", "000003", "000001"}, codesOf(list))

	// 每次成功变更都落库
	var saved []models.FundRecord
	require.True(t, st.GetJSON(KeyFunds, &saved))
	assert.Equal(t, []string{"000002", "000003", "000001"}, codesOf(saved))
}

func TestAddAllTrackedReturnsErrNoNewItems(t *testing.T) {
	m := NewManager(newMemStore())
	_, err := m.Add([]models.FundRecord{fund("000001", "A")})
	require.NoError(t, err)

	list, err := m.Add([]models.FundRecord{fund("000001", "A 又来")})
	assert.ErrorIs(t, err, ErrNoNewItems)
	assert.Equal(t, []string{"000001"}, codesOf(list))
	// 没加进来的不能覆盖已有内容
	assert.Equal(t, "A", list[0].Name)
}

func TestAddDedupesWithinBatch(t *testing.T) {
	m := NewManager(newMemStore())
	list, err := m.Add([]models.FundRecord{fund("000001", "一"), fund("000001", "一重复")})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "一", list[0].Name)
}

func TestRemoveIdempotent(t *testing.T) {
	m := NewManager(newMemStore())
	_, err := m.Add([]models.FundRecord{fund("000001", "A"), fund("000002", "B")})
	require.NoError(t, err)

	once, err := m.Remove("000001")
	require.NoError(t, err)
	twice, err := m.Remove("000001")
	require.NoError(t, err)
	assert.Equal(t, codesOf(once), codesOf(twice))
	assert.Equal(t, []string{"000002"}, codesOf(twice))
}

func TestRemoveAbsentCode(t *testing.T) {
	m := NewManager(newMemStore())
	_, err := m.Add([]models.FundRecord{fund("000001", "A")})
	require.NoError(t, err)
	list, err := m.Remove("999999")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001"}, codesOf(list))
}

func TestMergeRefreshedReplacesInPlace(t *testing.T) {
	m := NewManager(newMemStore())
	_, err := m.Add([]models.FundRecord{fund("000002", "B"), fund("000001", "A")})
	require.NoError(t, err)

	updated := fund("000001", "A")
	updated.EstValue = "1.05"
	list, err := m.MergeRefreshed([]models.FundRecord{updated})
	require.NoError(t, err)

	// 长度和位置都不变，只换内容
	require.Len(t, list, 2)
	assert.Equal(t, []string{"000002", "000001"}, codesOf(list))
	assert.Equal(t, "1.05", list[1].EstValue)
}

func TestMergeRefreshedAppendsUnknownCode(t *testing.T) {
	m := NewManager(newMemStore())
	_, err := m.Add([]models.FundRecord{fund("000001", "A")})
	require.NoError(t, err)

	list, err := m.MergeRefreshed([]models.FundRecord{fund("000009", "兜底追加")})
	require.NoError(t, err)
	assert.Equal(t, []string{"000001", "000009"}, codesOf(list))
}

func TestMergeRefreshedDedupesUpdates(t *testing.T) {
	m := NewManager(newMemStore())
	list, err := m.MergeRefreshed([]models.FundRecord{fund("000001", "一"), fund("000001", "一重复")})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAppendKeepsExistingOrder(t *testing.T) {
	m := NewManager(newMemStore())
	_, err := m.Add([]models.FundRecord{fund("000001", "A")})
	require.NoError(t, err)

	n, err := m.Append([]models.FundRecord{fund("000001", "A 重复"), fund("000002", "B"), fund("000003", "C")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"000001", "000002", "000003"}, codesOf(m.List()))
	// 已有的不被导入数据覆盖
	assert.Equal(t, "A", m.List()[0].Name)
}

func TestAppendNothingNewDoesNotPersist(t *testing.T) {
	st := newMemStore()
	m := NewManager(st)
	_, err := m.Add([]models.FundRecord{fund("000001", "A")})
	require.NoError(t, err)
	writes := st.jsonWrites()

	n, err := m.Append([]models.FundRecord{fund("000001", "A 重复")})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, writes, st.jsonWrites())
}

func TestMembershipCallback(t *testing.T) {
	m := NewManager(newMemStore())
	membership := 0
	updates := 0
	m.OnMembership(func() { membership++ })
	m.OnUpdate(func([]models.FundRecord) { updates++ })

	_, err := m.Add([]models.FundRecord{fund("000001", "A")})
	require.NoError(t, err)
	assert.Equal(t, 1, membership)

	// 内容替换不算成员变化，但快照更新要通知
	updated := fund("000001", "A")
	_, err = m.MergeRefreshed([]models.FundRecord{updated})
	require.NoError(t, err)
	assert.Equal(t, 1, membership)
	assert.Equal(t, 2, updates)

	_, err = m.Remove("000001")
	require.NoError(t, err)
	assert.Equal(t, 2, membership)
}

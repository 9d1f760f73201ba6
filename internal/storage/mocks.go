package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/feedmix/internal/models"
)

// MockReportArchive is a mock implementation of ReportArchive for testing
type MockReportArchive struct {
	mu       sync.Mutex
	Reports  map[string]*models.DailyReport
	WriteErr error
	GetErr   error
}

func NewMockReportArchive() *MockReportArchive {
	return &MockReportArchive{Reports: make(map[string]*models.DailyReport)}
}

func (m *MockReportArchive) ArchiveReport(ctx context.Context, report *models.DailyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	clone, err := report.Clone()
	if err != nil {
		return err
	}
	m.Reports[report.Date] = clone
	return nil
}

func (m *MockReportArchive) GetArchivedReport(ctx context.Context, date string) (*models.DailyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	r, ok := m.Reports[date]
	if !ok {
		return nil, models.ErrReportNotFound
	}
	return r.Clone()
}

func (m *MockReportArchive) ListArchived(ctx context.Context, filter ArchiveFilter) ([]*ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	result := make([]*ArchiveRecord, 0, len(m.Reports))
	for _, r := range m.Reports {
		rec, err := NewArchiveRecord(r, time.Time{})
		if err != nil {
			return nil, err
		}
		if !filter.From.IsZero() && rec.ReportDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && rec.ReportDate.After(filter.To) {
			continue
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReportDate.After(result[j].ReportDate)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*ArchiveRecord{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockReportArchive) Close() error {
	return nil
}

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu         sync.Mutex
	ZSets      map[string]map[string]float64
	TTLs       map[string]time.Duration
	Published  []PubSubMessage
	PubSubData []PubSubMessage
	PublishErr error
	ZAddErr    error
	GetErr     error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		ZSets: make(map[string]map[string]float64),
		TTLs:  make(map[string]time.Duration),
	}
}

func (m *MockRedisClient) ZAddBatch(ctx context.Context, key string, members []ZMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ZAddErr != nil {
		return m.ZAddErr
	}
	set, ok := m.ZSets[key]
	if !ok {
		set = make(map[string]float64)
		m.ZSets[key] = set
	}
	for _, member := range members {
		set[member.Member] = member.Score
	}
	return nil
}

// ZRevRangeWithScores orders by score descending, then member descending
// like Redis does for equal scores
func (m *MockRedisClient) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	members := make([]ZMember, 0, len(m.ZSets[key]))
	for member, score := range m.ZSets[key] {
		members = append(members, ZMember{Member: member, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member > members[j].Member
	})

	n := int64(len(members))
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start >= n || start > stop {
		return []ZMember{}, nil
	}
	return members[start : stop+1], nil
}

func (m *MockRedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TTLs[key] = ttl
	return nil
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ZSets, key)
	delete(m.TTLs, key)
	return nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.Published = append(m.Published, PubSubMessage{Channel: channel, Message: string(jsonData)})
	return nil
}

func (m *MockRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan PubSubMessage, len(m.PubSubData))
	for _, msg := range m.PubSubData {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) Close() error {
	return nil
}

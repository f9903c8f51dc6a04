package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ==================== 测试替身 ====================

type fakeBlobStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	mimes      map[string]string
	removed    []string
	uploadErr  map[int]error // 第 n 次上传失败（从 0 开始）
	urlErrFor  string        // 路径包含该串时无法解析公开地址
	uploadSeen int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}, mimes: map[string]string{}, uploadErr: map[int]error{}}
}

func (f *fakeBlobStore) Upload(_ context.Context, p string, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.uploadSeen
	f.uploadSeen++
	if err := f.uploadErr[n]; err != nil {
		return "", err
	}
	f.objects[p] = data
	f.mimes[p] = mimeType
	return p, nil
}

func (f *fakeBlobStore) PublicURL(_ context.Context, p string) (string, error) {
	if f.urlErrFor != "" && containsStr(p, f.urlErrFor) {
		return "", errors.New("no public url")
	}
	return "https://cdn.test/" + p, nil
}

func (f *fakeBlobStore) Remove(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, p)
	f.removed = append(f.removed, p)
	return nil
}

type fakeReader struct {
	files map[string][]byte
}

func (f *fakeReader) Read(_ context.Context, uri string) ([]byte, error) {
	data, ok := f.files[uri]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

type fakeCompressor struct {
	fn func([]byte) ([]byte, error)
}

func (f *fakeCompressor) Compress(data []byte) ([]byte, error) {
	if f.fn == nil {
		return data[:len(data)/2], nil
	}
	return f.fn(data)
}

func containsStr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func bytesOf(n int) []byte { return make([]byte, n) }

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []AnalyzeRequest
	fn    func(req AnalyzeRequest) (*AnalyzeResult, error)
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeAnalyzer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGenerator struct {
	mu   sync.Mutex
	reqs []GenerateRequest
	fn   func(ctx context.Context, req GenerateRequest) (json.RawMessage, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeGenerator) last() GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakePublisher struct {
	mu        sync.Mutex
	calls     []PublishRequest
	fail      map[string]bool
	locations map[string][]LocationInventory
}

func (f *fakePublisher) Publish(_ context.Context, req PublishRequest) (*PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail[req.Platform] {
		return nil, errors.New("platform rejected listing")
	}
	return &PublishResult{Success: true, ProductID: req.ProductID, OperationID: "op-" + req.Platform}, nil
}

func (f *fakePublisher) Locations(_ context.Context, platform, _ string) ([]LocationInventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LocationInventory(nil), f.locations[platform]...), nil
}

func (f *fakePublisher) platformsCalled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Platform)
	}
	return out
}

// memDraftStore 记录每一次写入
type memDraftStore struct {
	mu        sync.Mutex
	drafts    []VariantDraftRecord
	images    map[string][]string
	inventory [][]InventoryRecord
	err       error
}

func newMemDraftStore() *memDraftStore {
	return &memDraftStore{images: map[string][]string{}}
}

func (s *memDraftStore) SaveVariantDraft(_ context.Context, rec VariantDraftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.drafts = append(s.drafts, rec)
	return nil
}

func (s *memDraftStore) ReplaceVariantImages(_ context.Context, variantID string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.images[variantID] = append([]string(nil), urls...)
	return nil
}

func (s *memDraftStore) UpsertInventory(_ context.Context, rows []InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.inventory = append(s.inventory, append([]InventoryRecord(nil), rows...))
	return nil
}

func (s *memDraftStore) draftWrites() []VariantDraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]VariantDraftRecord(nil), s.drafts...)
}

func (s *memDraftStore) inventoryWrites() [][]InventoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]InventoryRecord(nil), s.inventory...)
}

func (s *memDraftStore) imagesFor(variantID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[variantID]
}

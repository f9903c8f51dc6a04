package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	drafts map[string]*StoredDraft
}

func (f *fakeLoader) LoadDraft(_ context.Context, _ string, variantID string) (*StoredDraft, error) {
	d, ok := f.drafts[variantID]
	if !ok {
		return nil, errors.New("variant not found")
	}
	return d, nil
}

func newTestManager(r *testRig, loader DraftLoader) *SessionManager {
	deps := MachineDeps{
		Uploader:  NewUploadService(r.blobs, r.reader, &fakeCompressor{}, r.clock, nil),
		Analyzer:  r.analyzer,
		Generator: r.generator,
		Publisher: NewPublishOrchestrator(r.publisher, []string{PlatformShopify}, nil),
		Store:     r.store,
		Clock:     r.clock,
	}
	return NewSessionManager(deps, DefaultMachineConfig(), loader)
}

func TestSessionManager_OwnerIsolation(t *testing.T) {
	sm := newTestManager(newRig(), &fakeLoader{})

	m := sm.Create("alice")
	id := m.Snapshot().ID

	got, err := sm.Get("alice", id)
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, err = sm.Get("bob", id)
	assert.ErrorIs(t, err, ErrSessionNotFound, "他人会话视为不存在")
	assert.ErrorIs(t, sm.Drop("bob", id), ErrSessionNotFound)

	require.NoError(t, sm.Drop("alice", id))
	_, err = sm.Get("alice", id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_Resume(t *testing.T) {
	loader := &fakeLoader{drafts: map[string]*StoredDraft{
		"v1": {
			Identity:  ProductIdentity{ProductID: "p1", VariantID: "v1"},
			Fallback:  BaseFields{Title: "Column title"},
			Platforms: []string{PlatformShopify},
		},
	}}
	sm := newTestManager(newRig(), loader)

	m, err := sm.Resume(context.Background(), "alice", "v1", "/products")
	require.NoError(t, err)
	v := m.Snapshot()
	assert.Equal(t, StageFormReview, v.Stage)
	assert.Equal(t, "Column title", v.Drafts[PlatformShopify].Base.Title, "Options 为空时使用列值")

	_, err = sm.Resume(context.Background(), "alice", "missing", "")
	assert.Error(t, err)
	assert.Equal(t, 1, sm.Len())
}

func TestSessionManager_DropIdleFlushesPending(t *testing.T) {
	r := newRig()
	sm := newTestManager(r, &fakeLoader{})

	busy := sm.Create("alice")
	require.NoError(t, busy.Seed(ProductIdentity{ProductID: "p1", VariantID: "v1"},
		DraftMap{PlatformShopify: NewPlatformDraft(PlatformShopify)}, []string{PlatformShopify}))
	require.NoError(t, busy.UpdateField(PlatformShopify, "title", "Unsaved"))

	r.clock.Advance(time.Second)
	fresh := sm.Create("bob")

	removed := sm.DropIdle(context.Background(), r.clock.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, sm.Len())
	_, err := sm.Get("bob", fresh.Snapshot().ID)
	assert.NoError(t, err)

	writes := r.store.draftWrites()
	require.Len(t, writes, 1, "清理前写入")
	assert.Equal(t, "Unsaved", writes[0].Title)
}

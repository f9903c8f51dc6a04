package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
	"listing_studio_v1/internal/repository"
)

func newListingService(t *testing.T, stagingDir string, maxBytes int64) *ListingService {
	db := setupServiceDB(t)
	seedListing(t, db)
	drafts := NewDraftStoreService(repository.NewListingUnitOfWork(db), repository.NewPlatformConnectionRepository(db), nil)
	manager := pipeline.NewSessionManager(pipeline.MachineDeps{Store: drafts}, pipeline.DefaultMachineConfig(), drafts)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })
	return NewListingService(manager, drafts, repository.NewAICallLogRepository(db), stagingDir, maxBytes, nil)
}

func TestListingService_CreateBindsConnections(t *testing.T) {
	svc := newListingService(t, "", 0)

	m, err := svc.Create(context.Background(), "u1")
	require.NoError(t, err)
	view := m.Snapshot()
	assert.Equal(t, pipeline.StagePlatformSelection, view.Stage)
	assert.Equal(t, map[string]string{"shopify": "c-shop"}, view.Connections)

	got, err := svc.Session("u1", view.ID)
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, err = svc.Session("u2", view.ID)
	assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)

	require.NoError(t, svc.Drop("u1", view.ID))
	_, err = svc.Session("u1", view.ID)
	assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)
}

func TestListingService_Resume(t *testing.T) {
	svc := newListingService(t, "", 0)
	ctx := context.Background()

	m, err := svc.Resume(ctx, "u1", "v1", "/products")
	require.NoError(t, err)
	view := m.Snapshot()
	assert.Equal(t, pipeline.StageFormReview, view.Stage)
	assert.Equal(t, pipeline.OriginResumed, view.Origin)
	assert.Equal(t, "/products", view.ReturnTo)
	assert.Equal(t, "v1", view.Identity.VariantID)

	_, err = svc.Resume(ctx, "u2", "v1", "")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestListingService_Stage(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		body     string
		maxBytes int64
		wantKind pipeline.MediaKind
		wantErr  error
	}{
		{name: "图片", filename: "a.JPG", body: "jpeg-bytes", wantKind: pipeline.MediaImage},
		{name: "视频", filename: "clip.mp4", body: "mp4", wantKind: pipeline.MediaVideo},
		{name: "超过上限", filename: "big.png", body: "0123456789", maxBytes: 4, wantErr: ErrMediaTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			svc := newListingService(t, dir, tt.maxBytes)

			in, err := svc.Stage("u/1", tt.filename, strings.NewReader(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				entries, _ := os.ReadDir(filepath.Join(dir, "u_1"))
				assert.Empty(t, entries, "失败时不留下文件")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, in.Kind)
			require.True(t, strings.HasPrefix(in.URI, "file://"))

			path := filepath.FromSlash(strings.TrimPrefix(in.URI, "file://"))
			assert.Equal(t, filepath.Join(dir, "u_1"), filepath.Dir(path), "按用户分目录")
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(data))

			// 暂存文件可被媒体读取器读取
			reader := NewMediaReader(nil, dir, 0)
			data, err = reader.Read(context.Background(), in.URI)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(data))
		})
	}

	t.Run("未配置暂存目录", func(t *testing.T) {
		svc := newListingService(t, "", 0)
		_, err := svc.Stage("u1", "a.jpg", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrStagingDisabled)
	})
}

func TestListingService_StageReadsImageSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))))
	svc := newListingService(t, t.TempDir(), 0)

	in, err := svc.Stage("u1", "shot.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, 40, in.Width)
	assert.Equal(t, 30, in.Height)

	in, err = svc.Stage("u1", "broken.png", strings.NewReader("not-an-image"))
	require.NoError(t, err, "读不出尺寸不影响暂存")
	assert.Zero(t, in.Width)
	assert.Zero(t, in.Height)
}

func TestListingService_SessionCalls(t *testing.T) {
	db := setupServiceDB(t)
	seedListing(t, db)
	drafts := NewDraftStoreService(repository.NewListingUnitOfWork(db), repository.NewPlatformConnectionRepository(db), nil)
	manager := pipeline.NewSessionManager(pipeline.MachineDeps{Store: drafts}, pipeline.DefaultMachineConfig(), drafts)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })
	svc := NewListingService(manager, drafts, repository.NewAICallLogRepository(db), "", 0, nil)

	m, err := svc.Create(context.Background(), "u1")
	require.NoError(t, err)
	id := m.Snapshot().ID
	require.NoError(t, db.Create(&model.AICallLog{UserID: "u1", SessionID: id, CallType: model.AICallTypeAnalyze, Status: model.AICallStatusSuccess}).Error)
	require.NoError(t, db.Create(&model.AICallLog{UserID: "u1", SessionID: id, CallType: model.AICallTypeGenerate, Status: model.AICallStatusFailed}).Error)
	require.NoError(t, db.Create(&model.AICallLog{UserID: "u1", SessionID: "other", CallType: model.AICallTypeAnalyze}).Error)

	logs, err := svc.SessionCalls(context.Background(), "u1", id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.AICallTypeAnalyze, logs[0].CallType)
	assert.Equal(t, model.AICallTypeGenerate, logs[1].CallType)

	_, err = svc.SessionCalls(context.Background(), "u2", id)
	assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)
}

func TestListingService_CleanStaging(t *testing.T) {
	dir := t.TempDir()
	svc := newListingService(t, dir, 0)

	old, err := svc.Stage("u1", "old.jpg", strings.NewReader("old"))
	require.NoError(t, err)
	fresh, err := svc.Stage("u1", "new.jpg", strings.NewReader("new"))
	require.NoError(t, err)

	oldPath := filepath.FromSlash(strings.TrimPrefix(old.URI, "file://"))
	past := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	n, err := svc.CleanStaging(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.FromSlash(strings.TrimPrefix(fresh.URI, "file://")))
	assert.NoError(t, err)
}

func TestListingService_Usage(t *testing.T) {
	svc := newListingService(t, "", 0)
	stats, err := svc.Usage(context.Background(), "u1", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalCalls)
}

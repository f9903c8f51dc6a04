package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadService_UploadAll(t *testing.T) {
	const limit = 100

	items := []MediaItem{
		{ID: "small", URI: "file:///m/small.png", Kind: MediaImage},
		{ID: "big", URI: "file:///m/big.jpg", Kind: MediaImage},
		{ID: "huge", URI: "file:///m/huge.jpg", Kind: MediaImage},
		{ID: "video", URI: "file:///m/clip.mp4", Kind: MediaVideo},
		{ID: "missing", URI: "file:///m/missing.jpg", Kind: MediaImage},
	}
	reader := &fakeReader{files: map[string][]byte{
		"file:///m/small.png": bytesOf(50),
		"file:///m/big.jpg":   bytesOf(150),
		"file:///m/huge.jpg":  bytesOf(400),
		"file:///m/clip.mp4":  bytesOf(500),
	}}
	store := newFakeBlobStore()
	svc := NewUploadService(store, reader, &fakeCompressor{}, newFakeClock(), nil)

	report := svc.UploadAll(context.Background(), "u1", items, limit)

	want := map[string]struct {
		outcome Outcome
		reason  string
	}{
		"small":   {OutcomeOK, ""},
		"big":     {OutcomeOK, ""},
		"huge":    {OutcomeSkipped, ReasonTooLargeCompressed},
		"video":   {OutcomeSkipped, ReasonTooLarge},
		"missing": {OutcomeSkipped, ReasonUnreadable},
	}
	require.Len(t, report.Results, len(items))
	for _, res := range report.Results {
		w := want[res.MediaID]
		assert.Equal(t, w.outcome, res.Outcome, res.MediaID)
		assert.Equal(t, w.reason, res.Reason, res.MediaID)
	}

	require.Len(t, report.Uploaded, 2)
	assert.Equal(t, "small", report.Uploaded[0].SourceMediaID, "保持输入顺序")
	assert.Equal(t, "image/png", report.Uploaded[0].MimeType)
	assert.Equal(t, "big", report.Uploaded[1].SourceMediaID)
	assert.Equal(t, "image/jpeg", report.Uploaded[1].MimeType, "压缩后按 JPEG 上传")
	assert.Equal(t, 75, report.Uploaded[1].ByteSize)

	for _, a := range report.Uploaded {
		assert.True(t, strings.HasPrefix(a.StoragePath, "users/u1/listings/20250101T000000/"), a.StoragePath)
		assert.True(t, strings.HasPrefix(a.RemoteURL, "https://cdn.test/"))
	}
	assert.Len(t, report.Skipped(), 3)
}

func TestUploadService_FailuresDoNotAbortBatch(t *testing.T) {
	items := []MediaItem{
		{ID: "a", URI: "a.jpg"},
		{ID: "b", URI: "b.jpg"},
		{ID: "c", URI: "c.jpg"},
	}
	reader := &fakeReader{files: map[string][]byte{"a.jpg": bytesOf(1), "b.jpg": bytesOf(1), "c.jpg": bytesOf(1)}}
	store := newFakeBlobStore()
	store.uploadErr[0] = errors.New("network down")
	svc := NewUploadService(store, reader, &fakeCompressor{}, newFakeClock(), nil)

	report := svc.UploadAll(context.Background(), "u1", items, 10)

	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	assert.Equal(t, ReasonUploadFailed, report.Results[0].Reason)
	assert.Error(t, report.Results[0].Err)
	require.Len(t, report.Uploaded, 2)
	assert.Equal(t, "b", report.Uploaded[0].SourceMediaID)

	_, ok := report.AssetFor("a")
	assert.False(t, ok)
}

func TestUploadService_PublicURLFailureRemovesObject(t *testing.T) {
	items := []MediaItem{{ID: "a", URI: "a.webp"}}
	reader := &fakeReader{files: map[string][]byte{"a.webp": bytesOf(3)}}
	store := newFakeBlobStore()
	store.urlErrFor = ".webp"
	svc := NewUploadService(store, reader, &fakeCompressor{}, newFakeClock(), nil)

	report := svc.UploadAll(context.Background(), "u1", items, 10)

	assert.Empty(t, report.Uploaded)
	assert.Equal(t, ReasonPublicURLUnresolved, report.Results[0].Reason)
	assert.Len(t, store.removed, 1)
	assert.Empty(t, store.objects)
}

func TestMimeTypeOf(t *testing.T) {
	assert.Equal(t, "video/quicktime", MimeTypeOf(".MOV", MediaVideo))
	assert.Equal(t, "image/jpeg", MimeTypeOf("", MediaImage))
	assert.Equal(t, "video/mp4", MimeTypeOf("", MediaVideo))
	assert.Equal(t, ".jpg", extOf("https://x.test/p/a.JPG?sig=1"))
}

package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
	"listing_studio_v1/internal/repository"
)

func TestListingAIService_Analyze(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     bool
		wantNoMatch bool
		wantText    string
		wantStatus  string
	}{
		{
			name:       "正常返回",
			status:     200,
			body:       `{"product":{"Id":"p1"},"variant":{"Id":"v1"},"analysis":{"GeneratedText":"[{\"position\":1}]"}}`,
			wantText:   `[{"position":1}]`,
			wantStatus: model.AICallStatusSuccess,
		},
		{
			name:        "404 视为无匹配",
			status:      404,
			body:        `{"message":"not found"}`,
			wantNoMatch: true,
			wantStatus:  model.AICallStatusNoMatch,
		},
		{
			name:        "无匹配消息",
			status:      200,
			body:        `{"product":{"Id":"p1"},"variant":{"Id":"v1"},"message":"No visual matches found for this image"}`,
			wantNoMatch: true,
			wantStatus:  model.AICallStatusNoMatch,
		},
		{
			name:       "服务端错误",
			status:     500,
			body:       `{"error":"boom"}`,
			wantErr:    true,
			wantStatus: model.AICallStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got pipeline.AnalyzeRequest
			var auth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/analyze", r.URL.Path)
				auth = r.Header.Get("Authorization")
				json.NewDecoder(r.Body).Decode(&got)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			db := setupServiceDB(t)
			logs := repository.NewAICallLogRepository(db)
			svc := NewListingAIService(apiClient(srv), NewCallRecorder(logs, nil), nil)

			ctx := pipeline.WithCallScope(context.Background(), pipeline.CallScope{OwnerID: "u1", SessionID: "s1"})
			res, err := svc.Analyze(ctx, pipeline.AnalyzeRequest{
				ImageURIs:         []string{"https://cdn/a.jpg"},
				SelectedPlatforms: []string{"shopify"},
			})

			assert.Equal(t, []string{"https://cdn/a.jpg"}, got.ImageURIs)
			assert.Equal(t, "Bearer test-token", auth)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantNoMatch, res.NoMatches)
				assert.Equal(t, tt.wantText, res.GeneratedText)
			}

			rows, err := logs.ListBySession(context.Background(), "s1")
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, model.AICallTypeAnalyze, rows[0].CallType)
			assert.Equal(t, tt.wantStatus, rows[0].Status)
			assert.Equal(t, "u1", rows[0].UserID)
		})
	}
}

func TestListingAIService_AnalyzeIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"product":{"Id":"p1"},"variant":{"Id":"v1"},"analysis":{"GeneratedText":""}}`))
	}))
	defer srv.Close()

	svc := NewListingAIService(apiClient(srv), nil, nil)
	res, err := svc.Analyze(context.Background(), pipeline.AnalyzeRequest{})
	require.NoError(t, err)
	assert.Equal(t, pipeline.ProductIdentity{ProductID: "p1", VariantID: "v1"}, res.Identity)
}

func TestListingAIService_Generate(t *testing.T) {
	t.Run("返回 generatedDetails 原文", func(t *testing.T) {
		var got map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate-details", r.URL.Path)
			json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"generatedDetails":{"shopify":{"title":"Mug"}}}`))
		}))
		defer srv.Close()

		svc := NewListingAIService(apiClient(srv), nil, nil)
		raw, err := svc.Generate(context.Background(), pipeline.GenerateRequest{
			ProductID:         "p1",
			VariantID:         "v1",
			ImageURIs:         []string{"u0"},
			SelectedPlatforms: []string{"shopify"},
			SelectedMatch:     &pipeline.MatchContext{Position: 2, Title: "Mug"},
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"shopify":{"title":"Mug"}}`, string(raw))

		assert.Equal(t, "p1", got["productId"])
		assert.Equal(t, float64(0), got["coverImageIndex"])
		match := got["selectedMatch"].(map[string]interface{})
		assert.Equal(t, float64(2), match["position"])
	})

	t.Run("缺少 generatedDetails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		_, err := NewListingAIService(apiClient(srv), nil, nil).Generate(context.Background(), pipeline.GenerateRequest{})
		assert.ErrorIs(t, err, pipeline.ErrInvalidGeneration)
	})

	t.Run("服务端错误", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewListingAIService(apiClient(srv), nil, nil).Generate(context.Background(), pipeline.GenerateRequest{})
		assert.Error(t, err)
	})
}

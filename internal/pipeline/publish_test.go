package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishInput() PublishInput {
	shop := NewPlatformDraft(PlatformShopify)
	shop.Base.Status = "active"
	shop.Shopify.Vendor = "Acme"
	shop.Shopify.Tags = []string{"mug"}
	return PublishInput{
		Identity:    ProductIdentity{ProductID: "p1", VariantID: "v1"},
		Platforms:   []string{PlatformShopify, PlatformEbay},
		Drafts:      DraftMap{PlatformShopify: shop, PlatformEbay: NewPlatformDraft(PlatformEbay)},
		Connections: map[string]string{PlatformShopify: "c-shop", PlatformEbay: "c-ebay"},
		Inventory: map[string][]LocationInventory{
			PlatformShopify: {{LocationID: "l1", Quantity: 0}, {LocationID: "l2", Quantity: 4}},
		},
	}
}

func TestPublishOrchestrator_Validate(t *testing.T) {
	o := NewPublishOrchestrator(&fakePublisher{}, []string{PlatformShopify}, nil)

	tests := []struct {
		name   string
		mutate func(in *PublishInput)
		want   error
	}{
		{"校验通过", func(*PublishInput) {}, nil},
		{"缺少标识", func(in *PublishInput) { in.Identity = ProductIdentity{} }, ErrIdentityRequired},
		{"没有平台", func(in *PublishInput) { in.Platforms = nil }, ErrNoPlatforms},
		{"缺少连接", func(in *PublishInput) { delete(in.Connections, PlatformEbay) }, ErrMissingConnection},
		{"全部数量为零", func(in *PublishInput) {
			in.Inventory[PlatformShopify] = []LocationInventory{{LocationID: "l1"}, {LocationID: "l2"}}
		}, ErrNoInventoryQuantity},
		{"没有仓库", func(in *PublishInput) { delete(in.Inventory, PlatformShopify) }, ErrNoInventoryQuantity},
		{"已发布平台跳过校验", func(in *PublishInput) {
			delete(in.Connections, PlatformEbay)
			in.AlreadyPublished = map[string]bool{PlatformEbay: true}
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := publishInput()
			tt.mutate(&in)
			err := o.Validate(in)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPublishOrchestrator_Publish(t *testing.T) {
	t.Run("校验失败不发请求", func(t *testing.T) {
		pub := &fakePublisher{}
		o := NewPublishOrchestrator(pub, []string{PlatformShopify}, nil)
		in := publishInput()
		in.Inventory[PlatformShopify] = nil

		_, err := o.Publish(context.Background(), in)
		assert.ErrorIs(t, err, ErrNoInventoryQuantity)
		assert.Empty(t, pub.platformsCalled())
	})

	t.Run("单平台失败记录在报告中", func(t *testing.T) {
		pub := &fakePublisher{fail: map[string]bool{PlatformEbay: true}}
		o := NewPublishOrchestrator(pub, []string{PlatformShopify}, nil)

		report, err := o.Publish(context.Background(), publishInput())
		require.NoError(t, err)
		require.Len(t, report.Outcomes, 2)
		assert.Equal(t, PlatformShopify, report.Outcomes[0].Platform, "按平台顺序输出")
		assert.True(t, report.Outcomes[0].Success)
		assert.Equal(t, "op-shopify", report.Outcomes[0].OperationID)

		failed := report.Failed()
		require.Len(t, failed, 1)
		assert.Equal(t, PlatformEbay, failed[0].Platform)
		assert.NotEmpty(t, failed[0].Error)
	})

	t.Run("发布选项取自草稿", func(t *testing.T) {
		pub := &fakePublisher{}
		o := NewPublishOrchestrator(pub, []string{PlatformShopify}, nil)
		_, err := o.Publish(context.Background(), publishInput())
		require.NoError(t, err)

		byPlatform := map[string]PublishRequest{}
		for _, c := range pub.calls {
			byPlatform[c.Platform] = c
		}
		shop := byPlatform[PlatformShopify]
		assert.Equal(t, "c-shop", shop.PlatformConnectionID)
		assert.Equal(t, PublishOptions{Status: "active", Vendor: "Acme", Tags: []string{"mug"}}, shop.Options)
		assert.Equal(t, []LocationQuantity{{LocationID: "l1", Quantity: 0}, {LocationID: "l2", Quantity: 4}}, shop.Locations)

		ebay := byPlatform[PlatformEbay]
		assert.Equal(t, DefaultDraftStatus, ebay.Options.Status)
		assert.Equal(t, []string{}, ebay.Options.Tags)
		assert.Empty(t, ebay.Locations)
	})
}

package application

import (
	"context"
	"errors"
	"testing"

	"github.com/jobrunner/envextract/internal/products"
)

func TestHealthServiceIsHealthy(t *testing.T) {
	service := NewHealthService(products.NewCatalogue(products.Options{}), nil, nil, "")

	if !service.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return true")
	}
}

func TestHealthServiceIsReady(t *testing.T) {
	tests := []struct {
		name    string
		ledger  *mockLedger
		storage *mockStorage
		want    bool
	}{
		{name: "nothing configured", want: true},
		{name: "components answer", ledger: &mockLedger{}, storage: newMockStorage(), want: true},
		{name: "ledger down", ledger: &mockLedger{pingErr: errors.New("closed")}, want: false},
		{name: "storage down", storage: &mockStorage{listErr: errors.New("forbidden")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewHealthService(products.NewCatalogue(products.Options{}), nil, nil, "exports")
			if tt.ledger != nil {
				service.ledger = tt.ledger
			}
			if tt.storage != nil {
				service.storage = tt.storage
			}

			if got := service.IsReady(context.Background()); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthServiceGetHealthDetails(t *testing.T) {
	service := NewHealthService(products.NewCatalogue(products.Options{}), &mockLedger{}, nil, "")

	details := service.GetHealthDetails(context.Background())
	if !details.Healthy || !details.Ready {
		t.Errorf("details = %+v, want healthy and ready", details)
	}
	if details.Products != 16 {
		t.Errorf("products = %d, want 16", details.Products)
	}
	if details.Components["ledger"] != "ok" || details.Components["storage"] != "disabled" {
		t.Errorf("components = %v", details.Components)
	}
}

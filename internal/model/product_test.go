package model

import (
	"errors"
	"testing"

	"github.com/remarket/remarket/internal/errs"
)

func validDraft() Draft {
	return Draft{
		Brand:   "Apple",
		Model:   "iPhone 13",
		Storage: "128GB",
		Price:   450,
	}
}

func TestValidateDraft(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Draft)
		wantField string
	}{
		{"valid", func(d *Draft) {}, ""},
		{"valid with imei", func(d *Draft) { d.IMEI = "359876543210987" }, ""},
		{"missing brand", func(d *Draft) { d.Brand = "" }, "brand"},
		{"missing model", func(d *Draft) { d.Model = "" }, "model"},
		{"missing storage", func(d *Draft) { d.Storage = "" }, "storage"},
		{"zero price", func(d *Draft) { d.Price = 0 }, "price"},
		{"negative price", func(d *Draft) { d.Price = -10 }, "price"},
		{"imei too short", func(d *Draft) { d.IMEI = "12345" }, "imei"},
		{"imei non-numeric", func(d *Draft) { d.IMEI = "35987654321098x" }, "imei"},
		{"empty image entry", func(d *Draft) { d.Images = []string{"a.jpg", ""} }, "images"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)

			err := d.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}

			var verr *errs.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestApplyPreservesServerFields(t *testing.T) {
	existing := Product{
		ID:        "srv-1",
		SellerID:  "seller-1",
		Brand:     "old",
		Price:     100,
		Status:    "approved",
		Active:    true,
		CreatedAt: "2026-01-02T10:00:00Z",
		UpdatedAt: "2026-01-03T10:00:00Z",
	}

	d := validDraft()
	d.Price = 399
	got := d.Apply(existing)

	if got.ID != "srv-1" || got.SellerID != "seller-1" {
		t.Errorf("Identity fields changed: %+v", got)
	}
	if got.Status != "approved" || got.CreatedAt != "2026-01-02T10:00:00Z" {
		t.Errorf("Server-owned fields changed: %+v", got)
	}
	if got.Brand != "Apple" || got.Price != 399 {
		t.Errorf("Draft fields not applied: %+v", got)
	}
}

// Package model defines the product domain types exchanged between the
// record store, the remote gateway, and the repository facade.
package model

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/remarket/remarket/internal/errs"
)

// Product is the domain representation of a marketplace listing.
// CreatedAt and UpdatedAt are opaque ISO-8601 strings issued by the server
// and are never parsed locally.
type Product struct {
	ID          string   `json:"id"`
	SellerID    string   `json:"sellerId"`
	Brand       string   `json:"brand"`
	Model       string   `json:"model"`
	Storage     string   `json:"storage"`
	Price       float64  `json:"price"`
	IMEI        string   `json:"imei"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	BoxURL      string   `json:"boxUrl"`
	InvoiceURL  string   `json:"invoiceUrl"`
	Status      string   `json:"status"`
	Active      bool     `json:"active"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// Draft carries the caller-supplied business fields for a create or update
// mutation. Image entries may be local file paths before upload; the media
// adapter replaces them with remote URLs where it can.
type Draft struct {
	Brand       string   `validate:"required"`
	Model       string   `validate:"required"`
	Storage     string   `validate:"required"`
	Price       float64  `validate:"gt=0"`
	IMEI        string   `validate:"omitempty,numeric,len=15"`
	Description string   `validate:"max=2000"`
	Images      []string `validate:"dive,required"`
	BoxURL      string
	InvoiceURL  string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs pre-flight checks on the draft. Failures are reported as
// *errs.ValidationError and are never sent to the network.
func (d Draft) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return &errs.ValidationError{
			Field:  strings.ToLower(f.Field()),
			Reason: reasonFor(f),
		}
	}
	return &errs.ValidationError{Field: "draft", Reason: err.Error()}
}

func reasonFor(f validator.FieldError) string {
	switch f.Tag() {
	case "required":
		return "must not be empty"
	case "gt":
		return "must be greater than " + f.Param()
	case "numeric":
		return "must contain only digits"
	case "len":
		return "must be exactly " + f.Param() + " characters"
	case "max":
		return "must be at most " + f.Param() + " characters"
	default:
		return "failed " + f.Tag() + " check"
	}
}

// Apply overlays the draft's business fields onto an existing product,
// preserving server-owned fields (id, seller, status, timestamps).
func (d Draft) Apply(p Product) Product {
	p.Brand = d.Brand
	p.Model = d.Model
	p.Storage = d.Storage
	p.Price = d.Price
	p.IMEI = d.IMEI
	p.Description = d.Description
	p.Images = d.Images
	p.BoxURL = d.BoxURL
	p.InvoiceURL = d.InvoiceURL
	return p
}

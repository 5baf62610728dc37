package api

import "github.com/remarket/remarket/internal/model"

// ProductDTO is the wire representation of a product as served by the
// remote API.
type ProductDTO struct {
	ID          string   `json:"id"`
	SellerID    string   `json:"sellerId"`
	Brand       string   `json:"brand"`
	Model       string   `json:"model"`
	Storage     string   `json:"storage"`
	Price       float64  `json:"price"`
	IMEI        string   `json:"imei"`
	Description string   `json:"description"`
	ImageURLs   []string `json:"imageUrls"`
	BoxImageURL string   `json:"boxImageUrl"`
	InvoiceURL  string   `json:"invoiceUrl"`
	Status      string   `json:"status"`
	Active      bool     `json:"active"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// ToDomain converts the wire representation to the domain type.
func (d ProductDTO) ToDomain() model.Product {
	return model.Product{
		ID:          d.ID,
		SellerID:    d.SellerID,
		Brand:       d.Brand,
		Model:       d.Model,
		Storage:     d.Storage,
		Price:       d.Price,
		IMEI:        d.IMEI,
		Description: d.Description,
		Images:      d.ImageURLs,
		BoxURL:      d.BoxImageURL,
		InvoiceURL:  d.InvoiceURL,
		Status:      d.Status,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// ProductRequest carries the business fields sent on create and update.
type ProductRequest struct {
	Brand       string   `json:"brand"`
	Model       string   `json:"model"`
	Storage     string   `json:"storage"`
	Price       float64  `json:"price"`
	IMEI        string   `json:"imei"`
	Description string   `json:"description"`
	ImageURLs   []string `json:"imageUrls"`
	BoxImageURL string   `json:"boxImageUrl,omitempty"`
	InvoiceURL  string   `json:"invoiceUrl,omitempty"`
}

// RequestFrom extracts the pushable business fields of a product.
func RequestFrom(p model.Product) ProductRequest {
	return ProductRequest{
		Brand:       p.Brand,
		Model:       p.Model,
		Storage:     p.Storage,
		Price:       p.Price,
		IMEI:        p.IMEI,
		Description: p.Description,
		ImageURLs:   p.Images,
		BoxImageURL: p.BoxURL,
		InvoiceURL:  p.InvoiceURL,
	}
}

// ReportRequest reports a listing for review.
type ReportRequest struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// LoginRequest authenticates a user.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

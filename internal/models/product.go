package models

// Product is one cart entry.
type Product struct {
	Name       string            `json:"Name"`
	Sku        string            `json:"Sku"`
	Price      float64           `json:"Price"`
	Quantity   float64           `json:"Quantity,omitempty"`
	Brand      string            `json:"Brand,omitempty"`
	Variant    string            `json:"Variant,omitempty"`
	Category   string            `json:"Category,omitempty"`
	Position   int               `json:"Position,omitempty"`
	CouponCode string            `json:"CouponCode,omitempty"`
	Attributes map[string]string `json:"Attributes,omitempty"`
}

// CopyProducts returns an independent copy of products, attributes included.
// The result is never nil.
func CopyProducts(products []Product) []Product {
	out := make([]Product, len(products))
	for i, p := range products {
		if p.Attributes != nil {
			attrs := make(map[string]string, len(p.Attributes))
			for k, v := range p.Attributes {
				attrs[k] = v
			}
			p.Attributes = attrs
		}
		out[i] = p
	}
	return out
}

package models

import (
	"encoding/json"
)

type Product struct {
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

type Order struct {
	Email    *string   `json:"email"`
	Products []Product `json:"products"`
}

// TotalQuantity is recomputed from Products on every call.
func (o Order) TotalQuantity() int {
	total := 0
	for _, p := range o.Products {
		total += p.Quantity
	}
	return total
}

// TotalPrice is recomputed from Products on every call.
func (o Order) TotalPrice() float64 {
	total := 0.0
	for _, p := range o.Products {
		total += p.Price * float64(p.Quantity)
	}
	return total
}

// MarshalJSON adds the derived totals to the serialized order.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	products := o.Products
	if products == nil {
		products = []Product{}
	}
	return json.Marshal(struct {
		plain
		Products      []Product `json:"products"`
		TotalPrice    float64   `json:"total_price"`
		TotalQuantity int       `json:"total_quantity"`
	}{
		plain:         plain(o),
		Products:      products,
		TotalPrice:    o.TotalPrice(),
		TotalQuantity: o.TotalQuantity(),
	})
}

type Summary struct {
	ID         int64   `json:"id"`
	Quantity   int     `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
}

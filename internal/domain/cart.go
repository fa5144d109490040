package domain

import "time"

type Cart struct {
	ID        string     `bson:"_id" json:"id"`
	Items     []CartItem `bson:"-" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// CartItem is unique by (ID, CartID); an item id means nothing outside its cart.
type CartItem struct {
	ID          string    `bson:"item_id" json:"id"`
	CartID      string    `bson:"cart_id" json:"cart_id"`
	Name        string    `bson:"name" json:"name"`
	Description *string   `bson:"description,omitempty" json:"description,omitempty"`
	Image       *string   `bson:"image,omitempty" json:"image,omitempty"`
	Price       int64     `bson:"price" json:"price"`
	Quantity    int64     `bson:"quantity" json:"quantity"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Money is always derived from integer minor units at read time.
type Money struct {
	Amount    int64  `json:"amount"`
	Formatted string `json:"formatted"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

package domain

// UserState is the conversation state of a user kept between messages
type UserState struct {
	State     string `json:"state"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	Notes     string `json:"notes,omitempty"`
	ProductID int64  `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	OrderID   int64  `json:"order_id,omitempty"`

	// Admin form fields
	Name       string `json:"name,omitempty"`
	Price      string `json:"price,omitempty"`
	CategoryID int64  `json:"category_id,omitempty"`
	TargetID   int64  `json:"target_id,omitempty"`
}

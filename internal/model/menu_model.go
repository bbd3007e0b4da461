package model

type MenuItem struct {
	MenuItemID  int64   `db:"menuitemid" json:"menu_item_id"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description" json:"description"`
	Category    string  `db:"category" json:"category"`
	Price       float64 `db:"price" json:"price"`
	ImageURL    string  `db:"imageurl" json:"image_url"`
	IsAvailable bool    `db:"isavailable" json:"is_available"`
}

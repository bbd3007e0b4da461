package model

type Table struct {
	TableID  int64  `db:"tableid" json:"table_id"`
	Name     string `db:"name" json:"name"`
	Token    string `db:"token" json:"token"`
	IsActive bool   `db:"isactive" json:"is_active"`
}

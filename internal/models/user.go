package models

// User is any address that held or moved a pair's LP token
type User struct {
	ID string `json:"id"` // Lowercase account address
}

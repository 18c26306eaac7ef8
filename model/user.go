package model

// User represents a registered uploader.
// Username and Token are each globally unique; rows are never updated.
type User struct {
	ID       string `json:"user_id" gorm:"primaryKey;size:36"`
	Username string `json:"username" gorm:"uniqueIndex;size:255;not null"`
	Token    string `json:"token" gorm:"uniqueIndex;size:36;not null"`
}

// TableName returns the database table name for the User model.
func (User) TableName() string {
	return "users"
}

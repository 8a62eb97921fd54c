package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Roles a user can hold
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User holds the structure for the user collection in mongo
type User struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details UserDetails        `json:"user" bson:"user"`
}

// UserDetails holds the structure for the inner user structure as defined in the user collection in mongo
type UserDetails struct {
	Email       string             `json:"email" bson:"email"`
	Password    string             `json:"-" bson:"password"`
	FirstName   string             `json:"firstName" bson:"firstName"`
	LastName    string             `json:"lastName" bson:"lastName"`
	PhoneNumber string             `json:"phoneNumber" bson:"phoneNumber"`
	Role        string             `json:"role" bson:"role"`
	CreatedAt   primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt   primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// IsAdmin reports whether the user may manage every incident
func (u User) IsAdmin() bool {
	return u.Details.Role == RoleAdmin
}

// FullName joins first and last name
func (u User) FullName() string {
	if u.Details.LastName == "" {
		return u.Details.FirstName
	}
	return u.Details.FirstName + " " + u.Details.LastName
}

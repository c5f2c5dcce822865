package models

import (
	"time"
)

type Role string

const (
	RoleClient    Role = "client"
	RoleTherapist Role = "therapist"
	RoleCenter    Role = "center"
	RoleOwner     Role = "owner"
)

type User struct {
	PhoneNumber string    `json:"phone_number" dynamodbav:"phone_number"`
	Role        Role      `json:"role" dynamodbav:"role"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
}

func (u *User) GetPK() string {
	return "USER!" + u.PhoneNumber
}

func (u *User) GetSK() string {
	return "METADATA"
}

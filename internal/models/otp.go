package models

import "time"

// OneTimePassword is the single pending code of a user. Value holds the
// ciphertext, never the plaintext code.
type OneTimePassword struct {
	PhoneNumber string    `json:"phone_number" dynamodbav:"phone_number"`
	Value       string    `json:"value" dynamodbav:"value"`
	ExpireTime  time.Time `json:"expire_time" dynamodbav:"expire_time"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// IsExpired reports whether now is past the expire time.
func (o *OneTimePassword) IsExpired(now time.Time) bool {
	return now.After(o.ExpireTime)
}

func (o *OneTimePassword) GetPK() string {
	return "USER!" + o.PhoneNumber
}

func (o *OneTimePassword) GetSK() string {
	return "OTP"
}

package rooms

import "time"

type roomResponse struct {
	Code      string    `json:"code"`
	Joined    bool      `json:"joined"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

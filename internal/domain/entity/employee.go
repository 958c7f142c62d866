package entity

import "time"

// Employee is a member of the directory who files reports or reviews them
type Employee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	SupervisorID string    `json:"supervisorId,omitempty"`
	IsAdmin      bool      `json:"isAdmin"`
	LarkOpenID   string    `json:"larkOpenId,omitempty"`
	Locale       string    `json:"locale"`
	CreatedAt    time.Time `json:"createdAt"`
}

package companies

import (
	"time"
)

// Company is identified by its name; employees reference it by name.
type Company struct {
	Name      string    `json:"company_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

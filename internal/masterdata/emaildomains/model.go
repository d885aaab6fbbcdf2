package emaildomains

import "time"

// EmailDomain is a domain employees may register with.
type EmailDomain struct {
	ID        int64     `json:"emaildomain_id"`
	Name      string    `json:"domain_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailDomainForm is the create/update payload.
type EmailDomainForm struct {
	Name string `json:"domain_name" validate:"required"`
}

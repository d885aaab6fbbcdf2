package companies

// CompanyForm is the create/update payload.
type CompanyForm struct {
	Name string `json:"company_name" validate:"required"`
}

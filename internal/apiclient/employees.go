package apiclient

import (
	"context"
	"net/http"

	"github.com/mdm-console/mdm-console/internal/masterdata/companies"
	"github.com/mdm-console/mdm-console/internal/masterdata/emaildomains"
)

// Employee is an employee account as returned by the API.
type Employee struct {
	ID       int64   `json:"emp_id"`
	Name     string  `json:"emp_name"`
	Email    string  `json:"email"`
	Company  *string `json:"company"`
	Role     *string `json:"role"`
	IsActive bool    `json:"is_active"`
}

// Registration is the payload of RegisterEmployee.
type Registration struct {
	Name     string `json:"emp_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company,omitempty"`
}

// EmployeeChanges carries optional field updates.
type EmployeeChanges struct {
	Name     *string `json:"emp_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Company  *string `json:"company,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ListEmployees returns every employee.
func (c *Client) ListEmployees(ctx context.Context) ([]Employee, error) {
	var out []Employee
	err := c.do(ctx, http.MethodGet, "/employee/list/", nil, &out)
	return out, err
}

// ListEmployeesWithoutRole returns employees with no role bound.
func (c *Client) ListEmployeesWithoutRole(ctx context.Context) ([]Employee, error) {
	var env struct {
		Employees []Employee `json:"employees_without_role"`
	}
	err := c.do(ctx, http.MethodGet, "/employee/without-role/", nil, &env)
	return env.Employees, err
}

// RegisterEmployee creates an account.
func (c *Client) RegisterEmployee(ctx context.Context, in Registration) (Employee, error) {
	var out Employee
	err := c.do(ctx, http.MethodPost, "/employee/register/", in, &out)
	return out, err
}

// UpdateEmployee applies the non-nil fields of changes.
func (c *Client) UpdateEmployee(ctx context.Context, id int64, changes EmployeeChanges) (Employee, error) {
	var out Employee
	err := c.do(ctx, http.MethodPut, idPath("/employee/update/%d/", id), changes, &out)
	return out, err
}

// DeleteEmployee removes an account.
func (c *Client) DeleteEmployee(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/employee/delete/%d/", id), nil, nil)
}

// AssignRole binds role to one employee; an empty role unbinds.
func (c *Client) AssignRole(ctx context.Context, id int64, role string) (Employee, error) {
	var out Employee
	err := c.do(ctx, http.MethodPut, idPath("/employee/assign-role/%d/", id), map[string]string{"role": role}, &out)
	return out, err
}

// BulkAssignRole binds role to several employees and returns the ids updated.
func (c *Client) BulkAssignRole(ctx context.Context, ids []int64, role string) ([]int64, error) {
	var out struct {
		Updated []int64 `json:"updated_employees"`
	}
	err := c.do(ctx, http.MethodPut, "/employee/bulk-assign-role/", map[string]any{"emp_ids": ids, "role": role}, &out)
	return out.Updated, err
}

// ListCompanies returns every company.
func (c *Client) ListCompanies(ctx context.Context) ([]companies.Company, error) {
	var out []companies.Company
	err := c.do(ctx, http.MethodGet, "/companies/", nil, &out)
	return out, err
}

// CreateCompany adds a company.
func (c *Client) CreateCompany(ctx context.Context, name string) (companies.Company, error) {
	var out companies.Company
	err := c.do(ctx, http.MethodPost, "/companies/create/", companies.CompanyForm{Name: name}, &out)
	return out, err
}

// RenameCompany changes a company's name.
func (c *Client) RenameCompany(ctx context.Context, name, newName string) (companies.Company, error) {
	var out companies.Company
	err := c.do(ctx, http.MethodPut, "/companies/"+pathEscape(name)+"/", companies.CompanyForm{Name: newName}, &out)
	return out, err
}

// DeleteCompany removes a company.
func (c *Client) DeleteCompany(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/companies/"+pathEscape(name)+"/", nil, nil)
}

// ListEmailDomains returns the registered email domains.
func (c *Client) ListEmailDomains(ctx context.Context) ([]emaildomains.EmailDomain, error) {
	var out []emaildomains.EmailDomain
	err := c.do(ctx, http.MethodGet, "/emaildomains/", nil, &out)
	return out, err
}

// CreateEmailDomain registers a domain.
func (c *Client) CreateEmailDomain(ctx context.Context, name string) (emaildomains.EmailDomain, error) {
	var out emaildomains.EmailDomain
	err := c.do(ctx, http.MethodPost, "/emaildomains/create/", emaildomains.EmailDomainForm{Name: name}, &out)
	return out, err
}

// UpdateEmailDomain renames a domain.
func (c *Client) UpdateEmailDomain(ctx context.Context, id int64, name string) (emaildomains.EmailDomain, error) {
	var out emaildomains.EmailDomain
	err := c.do(ctx, http.MethodPut, idPath("/emaildomains/%d/", id), emaildomains.EmailDomainForm{Name: name}, &out)
	return out, err
}

// DeleteEmailDomain removes a domain.
func (c *Client) DeleteEmailDomain(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/emaildomains/%d/", id), nil, nil)
}

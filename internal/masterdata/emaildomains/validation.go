package emaildomains

import (
	"fmt"
	"strings"

	"github.com/mdm-console/mdm-console/internal/masterdata/shared"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
)

// Normalize lowercases the domain and strips a leading "@".
func Normalize(domain string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
}

// DomainOf returns the normalized domain part of an email address.
func DomainOf(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", fmt.Errorf("%w: %q is not an email address", httpx.ErrValidation, email)
	}
	return Normalize(email[at+1:]), nil
}

func (s *Service) validate(d EmailDomain) (EmailDomain, error) {
	d.Name = Normalize(d.Name)
	if d.Name == "" {
		return EmailDomain{}, fmt.Errorf("domain name: %w", shared.ErrRequiredField)
	}
	if !strings.Contains(d.Name, ".") || strings.ContainsAny(d.Name, " @/") {
		return EmailDomain{}, fmt.Errorf("%w: %q is not a domain name", httpx.ErrValidation, d.Name)
	}
	return d, nil
}

package employees

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mdm-console/mdm-console/internal/auth"
	"github.com/mdm-console/mdm-console/internal/platform/httpx"
	"github.com/mdm-console/mdm-console/internal/shared"
)

// DomainChecker reports whether an email address may register.
type DomainChecker interface {
	Allows(ctx context.Context, email string) (bool, error)
}

// Service handles employee business logic.
type Service struct {
	repo    RepositoryPort
	domains DomainChecker
	audit   shared.AuditRecorder
	logger  *slog.Logger
}

// NewService builds Service instance. domains and audit may be nil.
func NewService(repo RepositoryPort, domains DomainChecker, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, domains: domains, audit: audit, logger: logger}
}

// List returns all employees.
func (s *Service) List(ctx context.Context) ([]Employee, error) {
	return s.repo.List(ctx)
}

// ListWithoutRole returns employees that have no role bound.
func (s *Service) ListWithoutRole(ctx context.Context) ([]Employee, error) {
	return s.repo.ListWithoutRole(ctx)
}

// Register creates an employee account. The email domain must be registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Employee, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Company = strings.TrimSpace(in.Company)
	if in.Name == "" {
		return Employee{}, fmt.Errorf("%w: employee name required", httpx.ErrValidation)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Employee{}, err
	}
	if s.domains != nil {
		ok, err := s.domains.Allows(ctx, email)
		if err != nil {
			return Employee{}, err
		}
		if !ok {
			return Employee{}, fmt.Errorf("%w: email domain of %q is not registered", httpx.ErrValidation, email)
		}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Employee{}, err
	}
	e := Employee{Name: in.Name, Email: email}
	if in.Company != "" {
		e.Company = &in.Company
	}
	created, err := s.repo.Create(ctx, e, hash)
	if err != nil {
		return Employee{}, err
	}
	s.record(ctx, "employee.register", created.ID, map[string]any{"email": created.Email})
	return created, nil
}

// Update edits profile fields.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Employee, error) {
	if id <= 0 {
		return Employee{}, fmt.Errorf("%w: invalid employee id", httpx.ErrValidation)
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Employee{}, fmt.Errorf("%w: employee name required", httpx.ErrValidation)
		}
		in.Name = &name
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return Employee{}, err
		}
		in.Email = &email
	}
	if in.Company != nil {
		company := strings.TrimSpace(*in.Company)
		in.Company = &company
	}
	updated, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Employee{}, err
	}
	s.record(ctx, "employee.update", id, nil)
	return updated, nil
}

// Delete removes an employee.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid employee id", httpx.ErrValidation)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "employee.delete", id, nil)
	return nil
}

// AssignRole binds exactly one role to the employee, replacing any previous
// role. A blank role unbinds.
func (s *Service) AssignRole(ctx context.Context, id int64, role string) (Employee, error) {
	if id <= 0 {
		return Employee{}, fmt.Errorf("%w: invalid employee id", httpx.ErrValidation)
	}
	var bound *string
	if r := strings.TrimSpace(role); r != "" {
		bound = &r
	}
	e, err := s.repo.AssignRole(ctx, id, bound)
	if err != nil {
		return Employee{}, err
	}
	s.record(ctx, "employee.assign_role", id, map[string]any{"role": role})
	return e, nil
}

// BulkAssignRole binds role to every listed employee and returns the ids updated.
func (s *Service) BulkAssignRole(ctx context.Context, ids []int64, role string) ([]int64, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, fmt.Errorf("%w: role required", httpx.ErrValidation)
	}
	unique := make(map[int64]struct{}, len(ids))
	batch := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("%w: invalid employee id %d", httpx.ErrValidation, id)
		}
		if _, ok := unique[id]; ok {
			continue
		}
		unique[id] = struct{}{}
		batch = append(batch, id)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: at least one employee must be selected", httpx.ErrValidation)
	}
	updated, err := s.repo.BulkAssignRole(ctx, batch, role)
	if err != nil {
		return nil, err
	}
	sort.Slice(updated, func(i, j int) bool { return updated[i] < updated[j] })
	s.record(ctx, "employee.bulk_assign_role", 0, map[string]any{"role": role, "employee_ids": updated})
	return updated, nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "employee",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: %q is not a valid email", httpx.ErrValidation, raw)
	}
	return strings.ToLower(addr.Address), nil
}

package console

import (
	"context"
	"sort"
	"strings"

	"github.com/mdm-console/mdm-console/internal/rbac"
)

// TemplateNames returns the sorted set of template roles enabled on at least
// one catalog permission.
func (b *Board) TemplateNames() []string {
	set := map[string]struct{}{}
	for _, p := range b.Catalog() {
		for _, name := range p.TemplateRoles.EnabledNames() {
			set[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TemplateSelection copies the permissions of a template role onto a target role.
type TemplateSelection struct {
	Target   string
	Template string

	board      *Board
	candidates []rbac.Permission
	selected   map[int64]bool
}

// StartTemplateCopy collects every permission enabled for template, all selected.
func (b *Board) StartTemplateCopy(target, template string) *TemplateSelection {
	s := &TemplateSelection{Target: target, Template: template, board: b, selected: map[int64]bool{}}
	for _, p := range b.Catalog() {
		if p.TemplateRoles.EnabledFor(template) {
			s.candidates = append(s.candidates, p)
			s.selected[p.ID] = true
		}
	}
	return s
}

// Candidates returns the permissions offered by the template.
func (s *TemplateSelection) Candidates() []rbac.Permission {
	out := make([]rbac.Permission, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Toggle flips the selection of a candidate. Unknown ids are ignored.
func (s *TemplateSelection) Toggle(permissionID int64) {
	if _, ok := s.selected[permissionID]; ok {
		s.selected[permissionID] = !s.selected[permissionID]
	}
}

// Selected returns the selected permission ids in ascending order.
func (s *TemplateSelection) Selected() []int64 {
	out := make([]int64, 0, len(s.selected))
	for id, on := range s.selected {
		if on {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Apply assigns the selected permissions to the target with every flag off,
// then refreshes the board.
func (s *TemplateSelection) Apply(ctx context.Context) (int, error) {
	target := strings.TrimSpace(s.Target)
	if target == "" {
		return 0, validationError("choose or create a role first")
	}
	ids := s.Selected()
	if len(ids) == 0 {
		return 0, validationError("select at least one permission")
	}
	batch := make([]rbac.Assignment, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, rbac.Assignment{PermissionID: id})
	}
	if err := s.board.api.AssignPermissions(ctx, target, batch); err != nil {
		return 0, err
	}
	return len(batch), s.board.Refresh(ctx)
}

// ApplyToDraft stages the selected permissions on d with every flag off. The
// role does not need to exist yet; d.Commit creates it and assigns the batch.
func (s *TemplateSelection) ApplyToDraft(d *RoleDraft) (int, error) {
	if d == nil {
		return 0, validationError("choose or create a role first")
	}
	ids := s.Selected()
	if len(ids) == 0 {
		return 0, validationError("select at least one permission")
	}
	for _, id := range ids {
		if err := d.Stage(id); err != nil {
			return 0, err
		}
		d.staged[id] = rbac.Flags{}
	}
	if strings.TrimSpace(s.Target) == "" {
		s.Target = d.Name
	}
	return len(ids), nil
}

package budgetrequest

import "budget-backend/internal/models"

// Actor is the authenticated caller.
type Actor struct {
	ID         uint
	Name       string
	Email      string
	Role       models.UserRole
	Department models.Department
}

func (a Actor) IsSuperAdmin() bool { return a.Role == models.RoleSuperAdmin }

// AdminOf reports whether the actor administers dept.
func (a Actor) AdminOf(dept models.Department) bool {
	return a.IsSuperAdmin() || (a.Role == models.RoleAdmin && a.Department == dept)
}

// Reviewer is a Finance admin or a super admin.
func (a Actor) Reviewer() bool {
	return a.AdminOf(models.DepartmentFinance)
}

// SeesAll reports whether list queries skip ownership scoping.
func (a Actor) SeesAll() bool {
	return a.Reviewer()
}

package session

import "slices"

const (
	LoginPath          = "/"
	ChangePasswordPath = "/trocar-senha"
	UserManagementPath = "/usuarios"
	DashboardPath      = "/dashboard"
)

// Decision is the outcome of Authorize. RedirectTo is empty when allowed.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func RedirectTo(path string) Decision {
	return Decision{RedirectTo: path}
}

// Authorize gates a view: anonymous sessions go to login, sessions whose
// role is not in a non-empty required set go to the dashboard.
func Authorize(sess *Session, required ...Role) Decision {
	if !sess.IsAuthenticated() {
		return RedirectTo(LoginPath)
	}
	if len(required) > 0 && !slices.Contains(required, sess.Role) {
		return RedirectTo(DashboardPath)
	}
	return Allow()
}

// LandingPath picks where a freshly logged-in session goes. A pending
// password change wins over any role.
func LandingPath(claims Claims) string {
	switch {
	case claims.MustChangePassword:
		return ChangePasswordPath
	case claims.Role == RoleAdmin:
		return UserManagementPath
	default:
		return DashboardPath
	}
}

type MenuItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

var (
	adminMenu = []MenuItem{
		{Label: "Usuários", Path: UserManagementPath},
	}
	userMenu = []MenuItem{
		{Label: "Agenda", Path: DashboardPath},
		{Label: "Pacientes", Path: "/patients"},
		{Label: "Tipos de Atendimento", Path: "/service-types"},
		{Label: "Tipos de Despesa", Path: "/expense-types"},
		{Label: "Atendimentos", Path: "/appointments"},
		{Label: "Despesas", Path: "/expenses"},
		{Label: "Finanças", Path: "/finances"},
		{Label: "Meu Perfil", Path: "/profile"},
	}
)

// Menu lists the navigation entries visible to role.
func Menu(role Role) []MenuItem {
	switch role {
	case RoleAdmin:
		return slices.Clone(adminMenu)
	case RoleUser:
		return slices.Clone(userMenu)
	default:
		return []MenuItem{}
	}
}

package client

// User is the directory profile the approver resolver works from.
type User struct {
	ID                  string `json:"id"`
	Active              bool   `json:"active"`
	RoleID              string `json:"role_id"`
	DepartmentID        string `json:"department_id"`
	ImmediateSuperiorID string `json:"immediate_superior_id"`
}

type roleHoldersResponse struct {
	UserIDs []string `json:"user_ids"`
}

type departmentHeadResponse struct {
	UserID string `json:"user_id"`
}

type requestDataResponse struct {
	Data map[string]any `json:"data"`
}

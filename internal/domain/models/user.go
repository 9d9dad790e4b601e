package models

// Role 用户角色
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleOperator   Role = "operator"
	RoleClient     Role = "client"
)

// Privileged 管理员与主管不受站点范围限制
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// Operator 值守人员及以上角色
func (r Role) Operator() bool {
	return r.Privileged() || r == RoleOperator
}

// User represents an operator or client account.
// 账户的增删改不在本服务内，这里只读取用于登录校验
type User struct {
	BaseModel
	Username string    `gorm:"type:varchar(50);unique;not null" json:"username"`
	Password string    `gorm:"type:varchar(100);not null" json:"-"` // Password not exposed in JSON
	Email    string    `gorm:"type:varchar(100)" json:"email"`
	Role     Role      `gorm:"type:varchar(20);not null" json:"role"`
	Status   string    `gorm:"type:varchar(20);not null" json:"status"` // Status: active, inactive
	AllSites bool      `gorm:"not null" json:"all_sites"`
	Sites    []JobSite `gorm:"many2many:user_sites;" json:"sites,omitempty"`
}

// SiteIDs returns the ids of the user's accessible sites
func (u User) SiteIDs() []uint {
	ids := make([]uint, 0, len(u.Sites))
	for _, s := range u.Sites {
		ids = append(ids, s.ID)
	}
	return ids
}

package models

// Identity 是认证后的调用方身份，来自令牌声明
type Identity struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	SiteIDs  []uint `json:"site_ids"`
	AllSites bool   `json:"all_sites"`
}

// Privileged reports whether the identity bypasses site scoping
func (i Identity) Privileged() bool {
	return i.Role.Privileged()
}

// IsOperator reports whether the identity may receive alerts and emergency notices
func (i Identity) IsOperator() bool {
	return i.Role.Operator()
}

// AllAccess reports whether the identity sees every site
func (i Identity) AllAccess() bool {
	return i.AllSites || i.Privileged()
}

// CanAccessSite reports whether siteID is within the identity's scope
func (i Identity) CanAccessSite(siteID uint) bool {
	if i.AllAccess() {
		return true
	}
	for _, id := range i.SiteIDs {
		if id == siteID {
			return true
		}
	}
	return false
}

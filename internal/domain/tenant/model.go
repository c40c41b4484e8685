package tenant

// TenantContext carries the resolved tenant for a request. Provisioning and
// authorization happen upstream; the accounting core only needs to know which
// tenant it is acting for.
type TenantContext struct {
	TenantID string
	UserID   string
}

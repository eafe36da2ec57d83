package shared

// DeletePolicy declares how an entity may be removed. Repositories consult
// the policy before issuing destructive SQL instead of scattering per-entity
// guards.
type DeletePolicy string

const (
	// DeleteNever forbids any removal; history stays queryable forever.
	DeleteNever DeletePolicy = "never"
	// DeleteSoftOnly permits deactivation-style updates but no row deletion.
	DeleteSoftOnly DeletePolicy = "soft-only"
)

// Deletable is implemented by entities that declare a removal policy.
type Deletable interface {
	DeletePolicy() DeletePolicy
}

// CanHardDelete reports whether physical deletion is allowed for the entity.
// No ledger entity currently allows it.
func CanHardDelete(e Deletable) bool {
	if e == nil {
		return false
	}
	switch e.DeletePolicy() {
	case DeleteNever, DeleteSoftOnly:
		return false
	default:
		return false
	}
}

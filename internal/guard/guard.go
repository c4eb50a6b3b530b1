// Package guard holds the role and ownership rules that gate document and
// user mutations. It only decides; persistence happens elsewhere, after an
// ALLOW.
package guard

type Role string

const (
	RoleCS         Role = "cs"
	RoleOperator   Role = "operator"
	RoleSuperadmin Role = "superadmin"
)

// operatorFields is the only set of document fields an operator may touch.
var operatorFields = map[string]struct{}{
	"status":       {},
	"keterangan":   {},
	"namaOperator": {},
}

// Decision is the outcome of a permission check. Fields carries the offending
// field names when an operator requests more than the status fields.
type Decision struct {
	Allowed bool
	Reason  string
	Fields  []string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string, fields ...string) Decision {
	return Decision{Reason: reason, Fields: fields}
}

// Valid reports whether role is one of the three known roles.
func Valid(role Role) bool {
	return role == RoleCS || role == RoleOperator || role == RoleSuperadmin
}

// Normalize maps an arbitrary stored role string to a known role, defaulting
// to cs the way new accounts do.
func Normalize(role string) Role {
	if Valid(Role(role)) {
		return Role(role)
	}
	return RoleCS
}

// CanCreateDocument allows intake staff and superadmins to register documents.
// Operators only advance status on existing ones.
func CanCreateDocument(role Role) Decision {
	if role == RoleCS || role == RoleSuperadmin {
		return allow()
	}
	return deny("Insufficient permissions")
}

// CanUpdateDocument decides whether the actor may modify the given fields of
// a document owned by ownerID.
func CanUpdateDocument(role Role, actorID, ownerID string, fields []string) Decision {
	switch role {
	case RoleSuperadmin:
		return allow()
	case RoleOperator:
		var offending []string
		for _, field := range fields {
			if _, ok := operatorFields[field]; !ok {
				offending = append(offending, field)
			}
		}
		if len(offending) > 0 {
			return deny("Operator hanya dapat mengubah status dokumen, tidak dapat mengubah data dokumen", offending...)
		}
		return allow()
	case RoleCS:
		if actorID != ownerID {
			return deny("Anda tidak memiliki akses untuk mengubah dokumen ini")
		}
		return allow()
	default:
		return deny("Insufficient permissions")
	}
}

// CanDeleteDocument follows the same ownership rule as cs edits: owner or
// superadmin only.
func CanDeleteDocument(role Role, actorID, ownerID string) Decision {
	switch role {
	case RoleSuperadmin:
		return allow()
	case RoleCS:
		if actorID != ownerID {
			return deny("Anda tidak memiliki akses untuk menghapus dokumen ini")
		}
		return allow()
	default:
		return deny("Insufficient permissions")
	}
}

// CanManageUsers gates the user-administration endpoints.
func CanManageUsers(role Role) Decision {
	if role == RoleSuperadmin {
		return allow()
	}
	return deny("Insufficient permissions")
}

// CanDeleteUser denies self-deletion for every role, then applies the
// superadmin-only rule.
func CanDeleteUser(role Role, actorID, targetID string) Decision {
	if actorID == targetID {
		return deny("Tidak dapat menghapus akun sendiri")
	}
	return CanManageUsers(role)
}

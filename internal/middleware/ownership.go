package middleware

import "github.com/iliyamo/cafeteria-procurement/internal/model"

// CheckOwnership reports whether p may act on a record owned by ownerID.
// Admins and managers may act on any record.
func CheckOwnership(p model.Principal, ownerID uint64) bool {
	return p.Privileged() || p.ID == ownerID
}

// FilterByOwnership tells list handlers how to scope a query for p.  When
// restricted is true only rows owned by ownerID may be returned.
func FilterByOwnership(p model.Principal) (ownerID uint64, restricted bool) {
	if p.Privileged() {
		return 0, false
	}
	return p.ID, true
}

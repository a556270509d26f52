package auth

// Authorize is the per-route role gate, applied after authentication.
func Authorize(p Principal, allowed ...Role) error {
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return ErrRoleNotPermitted
}

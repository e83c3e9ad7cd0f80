//go:build windows

package osutils

import (
	"golang.org/x/sys/windows"
)

// IsAdmin reports whether the process token is elevated. Membership in the
// Administrators group is not enough under UAC: a filtered token still
// cannot hook or inject into elevated windows.
func IsAdmin() bool {
	token := windows.GetCurrentProcessToken()
	return token.IsElevated()
}

// PrivilegeWarning explains what will not work at the current privilege
// level, or returns "".
func PrivilegeWarning() string {
	if IsAdmin() {
		return ""
	}
	return "not running elevated: input sent to elevated windows will not be observed or repeated"
}

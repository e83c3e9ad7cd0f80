//go:build unix

package osutils

import (
	"runtime"

	"golang.org/x/sys/unix"
)

const uinputPath = "/dev/uinput"

// IsAdmin reports whether the process runs as root
func IsAdmin() bool {
	return unix.Geteuid() == 0
}

// PrivilegeWarning explains what will not work at the current privilege
// level, or returns "".
func PrivilegeWarning() string {
	if runtime.GOOS != "linux" || IsAdmin() {
		return ""
	}
	if !writable(uinputPath) {
		return "cannot open " + uinputPath + ": run as root or add the user to the 'input' group and load the uinput module"
	}
	return ""
}

func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

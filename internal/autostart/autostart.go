// Package autostart provides start-on-login registration.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

const label = "com.turbofire.agent"

// ErrUnsupported is returned on platforms without a login-start mechanism.
var ErrUnsupported = errors.New("autostart not supported on this platform")

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>`

const linuxDesktopEntry = `[Desktop Entry]
Type=Application
Name=turbofire
Comment=Turbo-fire for keyboard keys and mouse buttons
Exec="{{.ExecutablePath}}"
Terminal=false
X-GNOME-Autostart-enabled=true
`

type entry struct {
	Label          string
	ExecutablePath string
}

// Enable enables auto-start on login
func Enable() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		path, err := macPlistPath()
		if err != nil {
			return err
		}
		return writeTemplate(path, macLaunchAgentPlist, execPath)
	case "linux":
		path, err := linuxDesktopPath()
		if err != nil {
			return err
		}
		return writeTemplate(path, linuxDesktopEntry, execPath)
	case "windows":
		return enableWindows(execPath)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
	}
}

// Disable disables auto-start on login
func Disable() error {
	switch runtime.GOOS {
	case "darwin", "linux":
		path, err := entryPath()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	case "windows":
		return disableWindows()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
	}
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	switch runtime.GOOS {
	case "darwin", "linux":
		path, err := entryPath()
		if err != nil {
			return false
		}
		_, err = os.Stat(path)
		return err == nil
	case "windows":
		return isEnabledWindows()
	default:
		return false
	}
}

// Apply brings the registration in line with enabled.
func Apply(enabled bool) error {
	switch {
	case enabled && !IsEnabled():
		return Enable()
	case !enabled && IsEnabled():
		return Disable()
	}
	return nil
}

func entryPath() (string, error) {
	if runtime.GOOS == "darwin" {
		return macPlistPath()
	}
	return linuxDesktopPath()
}

func macPlistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), nil
}

// linuxDesktopPath follows the XDG autostart spec.
func linuxDesktopPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "autostart", "turbofire.desktop"), nil
}

func writeTemplate(path, text, execPath string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpl, err := template.New(filepath.Base(path)).Parse(text)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tmpl.Execute(f, entry{Label: label, ExecutablePath: execPath})
}

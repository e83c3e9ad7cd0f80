//go:build !windows && !linux

package hook

import "log"

type platformState struct{}

func (m *Manager) startPlatform() error {
	log.Println("Hook: Global hooks not supported on this platform.")
	return nil
}

func (m *Manager) stopPlatform() {}

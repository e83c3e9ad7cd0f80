//go:build !windows && !linux

package input

// NewBackend reports that no input backend exists for this platform.
func NewBackend(cfg BackendConfig) (Backend, error) {
	return nil, ErrUnsupported
}

//go:build !darwin || (!arm64 && !amd64) || !cgo

package hv

func defaultFramework() framework { return nil }

// Supported reports false on platforms without Hypervisor.framework.
func Supported() (bool, error) {
	return false, ErrUnsupportedPlatform
}

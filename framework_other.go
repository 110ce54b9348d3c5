//go:build !arm64 && !amd64

package hv

type archFramework interface{}

// ExitInfo is empty on architectures without a framework.
type ExitInfo struct{}

func (c *VCPU) readExit() (ExitInfo, error) { return ExitInfo{}, nil }

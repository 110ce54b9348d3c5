//go:build !darwin || (!arm64 && !amd64) || !cgo

package hv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsupportedBuild(t *testing.T) {
	assert.Nil(t, defaultFramework())
	assert.Nil(t, hvf)

	ok, err := Supported()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = NewVM()
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

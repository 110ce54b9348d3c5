package hv

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSize(t *testing.T) {
	ps := PageSize()
	require.Positive(t, ps)
	assert.Zero(t, ps&(ps-1), "page size must be a power of two")
	assert.Equal(t, ps, PageSize())
}

func TestIsPageAligned(t *testing.T) {
	ps := uint64(PageSize())
	assert.True(t, isPageAligned(0))
	assert.True(t, isPageAligned(ps))
	assert.True(t, isPageAligned(16*ps))
	assert.False(t, isPageAligned(1))
	assert.False(t, isPageAligned(ps+1))
	assert.False(t, isPageAligned(ps-1))
}

func TestValidateRange(t *testing.T) {
	ps := uint64(PageSize())
	tests := []struct {
		name      string
		gpa, size uint64
		wantErr   error
		wantAny   bool
	}{
		{name: "valid", gpa: ps, size: 2 * ps},
		{name: "zero size", gpa: 0, size: 0, wantAny: true},
		{name: "unaligned gpa", gpa: 0x123, size: ps, wantErr: ErrInvalidAlignment},
		{name: "unaligned size", gpa: 0, size: ps + 1, wantErr: ErrInvalidAlignment},
		{name: "overflow", gpa: math.MaxUint64 - ps + 1, size: 2 * ps, wantAny: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRange(tt.gpa, tt.size)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAny:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrInvalidAlignment)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePerms(t *testing.T) {
	assert.NoError(t, validatePerms(MemRead))
	assert.NoError(t, validatePerms(MemRWX))
	assert.ErrorIs(t, validatePerms(0), ErrInvalidPermissions)
	assert.ErrorIs(t, validatePerms(MemRead|8), ErrInvalidPermissions)
}

func TestValidateMap(t *testing.T) {
	ps := PageSize()
	buf := pageBuf(t, 2)

	assert.NoError(t, validateMap(buf, 0, MemRW))
	assert.NoError(t, validateMap(buf[:ps], uint64(ps), MemRead))

	err := validateMap(nil, 0, MemRW)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidAlignment)

	assert.ErrorIs(t, validateMap(buf[1:ps+1], 0, MemRW), ErrInvalidAlignment, "unaligned host base")
	assert.ErrorIs(t, validateMap(buf[:ps-1], 0, MemRW), ErrInvalidAlignment, "unaligned host length")
	assert.ErrorIs(t, validateMap(buf, 1, MemRW), ErrInvalidAlignment, "unaligned gpa")
	assert.ErrorIs(t, validateMap(buf, 0, 0), ErrInvalidPermissions)
}

func TestGuestMemory(t *testing.T) {
	ps := PageSize()

	m, err := NewGuestMemory(ps + 1)
	require.NoError(t, err)
	assert.Equal(t, 2*ps, m.Len())

	b := m.Bytes()
	require.Len(t, b, 2*ps)
	assert.True(t, isPageAligned(uint64(uintptr(unsafe.Pointer(&b[0])))))
	b[0], b[len(b)-1] = 1, 2
	assert.Equal(t, byte(1), m.Bytes()[0])

	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
	assert.Zero(t, m.Len())
	assert.NoError(t, m.Close(), "Close is idempotent")
}

func TestNewGuestMemoryInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1, math.MaxInt} {
		_, err := NewGuestMemory(size)
		assert.Error(t, err, "size %d", size)
	}
}

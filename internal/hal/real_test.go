//go:build linux

package hal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSysfsBoard(t *testing.T) *LinuxBoard {
	t.Helper()
	return &LinuxBoard{
		adc: make(map[Pin]*os.File),
		iio: t.TempDir(),
		log: zerolog.Nop(),
	}
}

func TestLinuxAnalogRead(t *testing.T) {
	b := newSysfsBoard(t)
	require.NoError(t, os.WriteFile(filepath.Join(b.iio, "in_voltage2_raw"), []byte("1834\n"), 0o644))

	v, err := b.AnalogRead(2)
	require.NoError(t, err)
	assert.Equal(t, uint16(1834), v)

	_, err = b.AnalogRead(3)
	assert.Error(t, err)
	require.NoError(t, b.Close())
}

func TestLinuxCloseKeepsCauses(t *testing.T) {
	b := newSysfsBoard(t)
	for _, p := range []Pin{0, 1} {
		f, err := os.Create(filepath.Join(b.iio, fmt.Sprintf("adc%d", p)))
		require.NoError(t, err)
		require.NoError(t, f.Close())
		b.adc[p] = f
	}

	err := b.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.Contains(t, err.Error(), "close adc 0")
	assert.Contains(t, err.Error(), "close adc 1")
}

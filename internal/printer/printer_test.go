package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nemonic-bridge/internal/nemonic"
	"nemonic-bridge/internal/tspl"
)

// scripted answers reads from a fixed reply and records writes.
type scripted struct {
	reply   *bytes.Reader
	written bytes.Buffer
}

func newScripted(reply string) *scripted {
	return &scripted{reply: bytes.NewReader([]byte(reply))}
}

func (s *scripted) Write(p []byte) (int, error) { return s.written.Write(p) }

// Read reports a timeout once the reply is used up.
func (s *scripted) Read(p []byte) (int, error) {
	if s.reply.Len() == 0 {
		return 0, nil
	}
	return s.reply.Read(p)
}

func TestQueryStatus(t *testing.T) {
	rw := newScripted("\x05")
	status, err := queryStatus(rw)
	require.NoError(t, err)
	assert.Equal(t, nemonic.StatusHeadOpen|nemonic.StatusOutOfPaper, status)
	assert.Equal(t, "\x1b!?", rw.written.String())

	_, err = queryStatus(newScripted(""))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestQueryBattery(t *testing.T) {
	rw := newScripted("BATTERY\x37\r\nleftover")
	level, err := queryBattery(rw)
	require.NoError(t, err)
	assert.Equal(t, 0x37, level)
	assert.Equal(t, "BATTERY?\r\n", rw.written.String())

	_, err = queryBattery(newScripted("CONFIG:1\r\n"))
	assert.ErrorIs(t, err, ErrBadResponse)

	_, err = queryBattery(newScripted("BATT"))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSendPageClearsPauseFirst(t *testing.T) {
	rw := newScripted("")
	require.NoError(t, sendPage(rw, []byte("PRINT 1\r\n"), 0))
	assert.Equal(t, "\x1b!oPRINT 1\r\n", rw.written.String())
}

func TestResultFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, nemonic.OK},
		{ErrTimeout, nemonic.Timeout},
		{fmt.Errorf("%w: %w", ErrConnectionCanceled, context.DeadlineExceeded), nemonic.Timeout},
		{fmt.Errorf("%w: %w", ErrConnectionCanceled, context.Canceled), nemonic.Canceled},
		{context.Canceled, nemonic.Canceled},
		{fmt.Errorf("rfcomm: %w", ErrNotSupported), nemonic.NotSupported},
		{ErrNotConnected, nemonic.NotConnected},
		{ErrPrivilegeRequired, nemonic.Fail},
		{errors.New("boom"), nemonic.Fail},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resultFor(tt.err), "%v", tt.err)
	}
}

func TestCartridgeFits(t *testing.T) {
	assert.True(t, cartridgeFits(nemonic.TypeNemonicLabel, tspl.Label12x40))
	assert.False(t, cartridgeFits(nemonic.TypeNemonicLabel, tspl.Continuous76x76))
	assert.True(t, cartridgeFits(nemonic.TypeNemonic, tspl.Continuous76x76))
	assert.True(t, cartridgeFits(nemonic.TypeNemonicMIP, tspl.Continuous76x76))
	assert.False(t, cartridgeFits(nemonic.TypeNemonicMIP, tspl.Label15x30))
	assert.True(t, cartridgeFits(nemonic.TypeNone, tspl.Label15x30))
}

func TestTypeForName(t *testing.T) {
	assert.Equal(t, nemonic.TypeNemonic, TypeForName("nemonic-1234"))
	assert.Equal(t, nemonic.TypeNemonicLabel, TypeForName("Nemonic Label 01"))
	assert.Equal(t, nemonic.TypeNemonicMIP, TypeForName("NEMONIC MIP"))
	assert.Equal(t, nemonic.TypeNone, TypeForName(""))
}

func TestMatchName(t *testing.T) {
	filters := []string{"nemonic", "P21"}
	assert.True(t, MatchName("Nemonic Label", filters))
	assert.True(t, MatchName("p21-A1B2", filters))
	assert.False(t, MatchName("JBL Flip", filters))
	assert.False(t, MatchName("", filters))
	assert.True(t, MatchName("anything", nil))
}

func TestPairedDevicesEmpty(t *testing.T) {
	_, err := pairedDevices(nil)
	assert.ErrorIs(t, err, ErrNoDevicesFound)

	devices, err := pairedDevices([]BluetoothDevice{{Name: "nemonic", MAC: "00:11:22:33:44:55"}})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

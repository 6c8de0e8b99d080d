package pins

import (
	"testing"

	"github.com/benmeehan/gpio-agent/internal/hal"
	"github.com/benmeehan/gpio-agent/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable() (*Table, *hal.Simulated) {
	sim := hal.NewSimulated(nil, zerolog.Nop())
	return NewTable(sim, zerolog.Nop()), sim
}

func TestTable_ReadNotSetup(t *testing.T) {
	table, _ := newTestTable()

	_, err := table.Read(7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSetup)
	assert.Equal(t, protocol.KindHardware, protocol.KindOf(err))
	assert.Equal(t, "pin 7 not setup", err.Error())
}

func TestTable_SetupWriteRead(t *testing.T) {
	table, _ := newTestTable()

	require.NoError(t, table.Setup(4, hal.ModeOutput))
	require.NoError(t, table.Write(4, 1))

	v, err := table.Read(4)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	st, ok := table.State(4)
	assert.True(t, ok)
	assert.Equal(t, hal.ModeOutput, st.Mode)
	assert.True(t, st.Configured)
	assert.Equal(t, []int{4}, table.Pins())
}

func TestTable_WriteValidation(t *testing.T) {
	table, _ := newTestTable()
	require.NoError(t, table.Setup(1, hal.ModeOutput))
	require.NoError(t, table.Setup(2, hal.ModeInput))

	err := table.Write(1, 2)
	assert.Equal(t, protocol.KindValidation, protocol.KindOf(err))

	err = table.Write(2, 1)
	assert.Equal(t, protocol.KindHardware, protocol.KindOf(err))

	err = table.Write(3, 1)
	assert.ErrorIs(t, err, ErrNotSetup)
}

func TestTable_WriteIfChanged(t *testing.T) {
	table, sim := newTestTable()
	require.NoError(t, table.Setup(5, hal.ModeOutput))

	written, _, err := table.WriteIfChanged(5, 0)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, 0, sim.Counters().Write)

	written, gen, err := table.WriteIfChanged(5, 1)
	require.NoError(t, err)
	assert.True(t, written)
	assert.NotZero(t, gen)
	assert.Equal(t, 1, sim.Counters().Write)
}

func TestTable_RevertSuperseded(t *testing.T) {
	table, _ := newTestTable()
	require.NoError(t, table.Setup(6, hal.ModeOutput))

	_, first, err := table.WriteIfChanged(6, 1)
	require.NoError(t, err)
	_, second, err := table.WriteIfChanged(6, 0)
	require.NoError(t, err)

	applied, err := table.Revert(6, 0, first)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = table.Revert(6, 1, second)
	require.NoError(t, err)
	assert.True(t, applied)

	v, err := table.Read(6)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestTable_SetupSupersedesRevert(t *testing.T) {
	table, _ := newTestTable()
	require.NoError(t, table.Setup(8, hal.ModeOutput))

	_, gen, err := table.WriteIfChanged(8, 1)
	require.NoError(t, err)
	require.NoError(t, table.Setup(8, hal.ModeOutput))

	applied, err := table.Revert(8, 0, gen)
	require.NoError(t, err)
	assert.False(t, applied)
}

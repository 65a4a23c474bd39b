package mdt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandText(t *testing.T) {
	tests := []struct {
		cmd   Command
		text  string
		query bool
	}{
		{Command{Op: OpIdentify}, "id?", true},
		{Command{Op: OpGetVoltage, Axis: AxisX}, "xvoltage?", true},
		{Command{Op: OpGetVoltage, Axis: AxisZ}, "zvoltage?", true},
		{Command{Op: OpSetVoltage, Axis: AxisY, Value: 12.5}, "yvoltage=12.500", false},
		{Command{Op: OpSetVoltage, Axis: AxisX, Value: 0}, "xvoltage=0.000", false},
		{Command{Op: OpGetLimit}, "vlimit?", true},
		{Query("*IDN?"), "*IDN?", true},
		{Query("xvoltage=1"), "xvoltage=1", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.cmd.Text())
			assert.Equal(t, tt.query, tt.cmd.Query())
		})
	}
}

func TestValidateQueries(t *testing.T) {
	require.NoError(t, ValidateQueries(DefaultProbeQueries))

	for _, bad := range [][]string{
		{"id?", "xvoltage=10"},
		{"reset"},
		{""},
		{"id?\rxvoltage=1?"},
	} {
		assert.ErrorIs(t, ValidateQueries(bad), ErrUnsafeQuery, "%q", bad)
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		cmd  string
		want string
	}{
		{"bracketed voltage", "xvoltage?\r[ 12.50]\r>", "xvoltage?", "12.50"},
		{"id with prompt", "id?\rMDT693B Piezo Controller\r>", "id?", "MDT693B Piezo Controller"},
		{"set acknowledgement", "xvoltage=10.000\r>", "xvoltage=10.000", ""},
		{"no echo", "[150]\r\n> ", "vlimit?", "150"},
		{"error marker", "!CMD_NOT_DEFINED*\r>", "foo?", "CMD_NOT_DEFINED"},
		{"invalid utf8", "\xff\xfe12.00\r>", "", "12.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanReply([]byte(tt.raw), tt.cmd))
		})
	}
}

func TestParseNumber(t *testing.T) {
	v, err := parseNumber("12.50")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = parseNumber("150")
	require.NoError(t, err)
	assert.Equal(t, 150.0, v)

	v, err = parseNumber("X= -0.25 V")
	require.NoError(t, err)
	assert.Equal(t, -0.25, v)

	_, err = parseNumber("")
	assert.Error(t, err)

	_, err = parseNumber("CMD_NOT_DEFINED")
	assert.Error(t, err)
}

func TestDeviceError(t *testing.T) {
	assert.ErrorIs(t, deviceError("CMD_NOT_DEFINED"), ErrDeviceCommand)
	assert.ErrorIs(t, deviceError("cmd_arg_invalid"), ErrDeviceCommand)
	assert.NoError(t, deviceError("12.50"))
	assert.NoError(t, deviceError(""))
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		reply   string
		mdt     bool
		model   string
		numeric bool
	}{
		{"MDT693B Piezo Controller", true, "MDT693B", false},
		{"THORLABS,MDT694A,0,1.04", true, "MDT694A", false},
		{"mdt-694b", true, "MDT694B", false},
		{"Thorlabs piezo", true, "", false},
		{"Model 693", true, "", false},
		{"12.50", true, "", true},
		{"-0.01", true, "", true},
		{"", false, "", false},
		{"OK", false, "", false},
		{"CMD_NOT_DEFINED", false, "", false},
		{"42", false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			id := Identify(tt.reply)
			assert.Equal(t, tt.mdt, id.MDT)
			assert.Equal(t, tt.model, id.Model)
			assert.Equal(t, tt.numeric, id.Numeric)
		})
	}
}

func TestReadReply(t *testing.T) {
	d := newMDT("MDT693B")
	d.volts[AxisX] = 3.25
	d.open()

	_, err := d.Write([]byte("xvoltage?\r"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := readReply(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "3.25", cleanReply(raw, "xvoltage?"))
}

func TestReadReplyPartialThenIdle(t *testing.T) {
	d := newGarbage("no prompt here")
	d.open()
	_, err := d.Write([]byte("id?\r"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	raw, err := readReply(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "no prompt here", string(raw))
}

func TestReadReplyNothing(t *testing.T) {
	d := newSilent()
	d.open()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	raw, err := readReply(ctx, d)
	assert.Empty(t, raw)
	assert.ErrorIs(t, err, ErrReadTimeout)
}

package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumacart/broadcast/internal/core"
)

func TestListDevicesSplitsByKind(t *testing.T) {
	engine := &stubEngine{devices: []core.DeviceInfo{
		{ID: "cam-1", Label: "Front Camera", Kind: core.TrackKindVideo},
		{ID: "mic-1", Label: "Headset", Kind: core.TrackKindAudio},
		{ID: "cam-2", Label: "USB Camera", Kind: core.TrackKindVideo},
	}}

	devices, err := NewInventory(engine).ListDevices()
	require.NoError(t, err)

	require.Len(t, devices.Cameras, 2)
	require.Len(t, devices.Microphones, 1)
	assert.Equal(t, "Front Camera", devices.Cameras[0].Label)
	assert.Equal(t, "USB Camera", devices.Cameras[1].Label)
	assert.Equal(t, "Headset", devices.Microphones[0].Label)
}

func TestListDevicesFallsBackToPositionalLabels(t *testing.T) {
	engine := &stubEngine{devices: []core.DeviceInfo{
		{ID: "cam-1", Kind: core.TrackKindVideo},
		{ID: "cam-2", Kind: core.TrackKindVideo},
		{ID: "mic-1", Kind: core.TrackKindAudio},
	}}

	devices, err := NewInventory(engine).ListDevices()
	require.NoError(t, err)

	assert.Equal(t, "Camera 1", devices.Cameras[0].Label)
	assert.Equal(t, "Camera 2", devices.Cameras[1].Label)
	assert.Equal(t, "Microphone 1", devices.Microphones[0].Label)
}

func TestListDevicesWrapsEnumerationFailure(t *testing.T) {
	engine := &stubEngine{enumErr: errors.New("usb bus reset")}

	_, err := NewInventory(engine).ListDevices()
	require.ErrorIs(t, err, core.ErrDeviceEnumerationFailed)
	assert.Contains(t, err.Error(), "usb bus reset")
}

func TestListDevicesEmptyInventory(t *testing.T) {
	devices, err := NewInventory(&stubEngine{}).ListDevices()
	require.NoError(t, err)
	assert.Empty(t, devices.Cameras)
	assert.Empty(t, devices.Microphones)
}

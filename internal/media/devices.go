package media

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/core"
)

type DeviceDescriptor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Devices struct {
	Cameras     []DeviceDescriptor `json:"cameras"`
	Microphones []DeviceDescriptor `json:"microphones"`
}

// Inventory is a read-only query surface over the capture engine.
type Inventory struct {
	engine core.MediaEngine
}

func NewInventory(engine core.MediaEngine) *Inventory {
	return &Inventory{engine: engine}
}

// ListDevices enumerates cameras and microphones. Labels may be empty until
// capture permission has been granted once, so unlabeled entries get a
// positional name instead.
func (inv *Inventory) ListDevices() (Devices, error) {
	infos, err := inv.engine.Enumerate()
	if err != nil {
		log.Warn().Err(err).Str("module", "media.devices").Msg("enumeration failed")
		return Devices{}, fmt.Errorf("%w: %w", core.ErrDeviceEnumerationFailed, err)
	}

	var out Devices
	for _, info := range infos {
		switch info.Kind {
		case core.TrackKindVideo:
			out.Cameras = append(out.Cameras, DeviceDescriptor{
				ID:    info.ID,
				Label: fallbackLabel(info.Label, "Camera", len(out.Cameras)+1),
			})
		case core.TrackKindAudio:
			out.Microphones = append(out.Microphones, DeviceDescriptor{
				ID:    info.ID,
				Label: fallbackLabel(info.Label, "Microphone", len(out.Microphones)+1),
			})
		}
	}
	return out, nil
}

func fallbackLabel(label, kind string, position int) string {
	if label != "" {
		return label
	}
	return fmt.Sprintf("%s %d", kind, position)
}

package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hearthwire/matterhub/internal/device"
	"github.com/hearthwire/matterhub/internal/matter"
)

// Supported colour temperature bounds in Kelvin. The ColorControl
// cluster speaks mireds (1e6/K); anything outside this window maps to
// mired values no real luminaire accepts.
const (
	MinTemperatureKelvin = 1000
	MaxTemperatureKelvin = 10000
)

// Logger is the interface for dispatcher log output.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Commander carries device commands to the controller backend.
// *matter.Client satisfies it.
type Commander interface {
	SendCommand(ctx context.Context, command string, args map[string]any) (json.RawMessage, error)
	IsConnected() bool
}

// DeviceView looks up cached devices by canonical ID. The device store
// satisfies it.
type DeviceView interface {
	Get(id string) (*device.Device, error)
}

// Dispatcher validates control requests and issues the matching
// cluster commands.
//
// The dispatcher holds no per-request state; all public methods are
// thread-safe.
type Dispatcher struct {
	commander Commander
	devices   DeviceView

	loggerMu sync.RWMutex
	logger   Logger
}

// New creates a dispatcher sending through commander and resolving
// targets against devices.
func New(commander Commander, devices DeviceView) *Dispatcher {
	return &Dispatcher{
		commander: commander,
		devices:   devices,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

func (d *Dispatcher) getLogger() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

// SetLight applies brightness and colour temperature to a light.
//
// Both parameters are optional; nil means "leave unchanged". All
// validation happens before any backend traffic:
//
//   - brightness must lie in [0.0, 1.0]
//   - temperature must lie in [MinTemperatureKelvin, MaxTemperatureKelvin]
//
// A brightness of exactly 0.0 issues OnOff.Off; any positive brightness
// issues MoveToLevelWithOnOff, which implies power-on. Temperature maps
// to MoveToColorTemperature with mireds = round(1e6/K). When both are
// given, brightness dispatches first so the power transition lands
// before the colour change.
//
// A call with neither parameter set validates the target and returns
// without touching the backend.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - id: Canonical device ID (aliases are resolved by the caller)
//   - brightness: Fraction of full output, or nil
//   - temperature: Colour temperature in Kelvin, or nil
//
// Returns:
//   - error: ErrDeviceNotFound, ErrNotLight, ErrBrightnessRange,
//     ErrTemperatureRange, ErrBackendUnavailable or ErrCommandRejected
func (d *Dispatcher) SetLight(ctx context.Context, id string, brightness *float64, temperature *int) error {
	dev, err := d.devices.Get(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if dev.Kind != device.KindLight {
		return fmt.Errorf("%w: %s is %s", ErrNotLight, id, dev.Kind)
	}

	if brightness != nil {
		b := *brightness
		if math.IsNaN(b) || b < 0 || b > 1 {
			return fmt.Errorf("%w: %v not in [0.0, 1.0]", ErrBrightnessRange, b)
		}
	}
	if temperature != nil {
		k := *temperature
		if k < MinTemperatureKelvin || k > MaxTemperatureKelvin {
			return fmt.Errorf("%w: %dK not in [%d, %d]",
				ErrTemperatureRange, k, MinTemperatureKelvin, MaxTemperatureKelvin)
		}
	}

	if brightness != nil {
		if err := d.dispatchBrightness(ctx, dev, *brightness); err != nil {
			return err
		}
	}
	if temperature != nil {
		if err := d.dispatchTemperature(ctx, dev, *temperature); err != nil {
			return err
		}
	}

	return nil
}

// dispatchBrightness issues the power or level command for a validated
// brightness value.
func (d *Dispatcher) dispatchBrightness(ctx context.Context, dev *device.Device, brightness float64) error {
	var (
		clusterID uint32
		command   string
		payload   map[string]any
	)

	if brightness == 0 {
		// Zero always powers off, regardless of prior level.
		clusterID = matter.ClusterOnOff
		command = matter.CommandOff
	} else {
		clusterID = matter.ClusterLevelControl
		command = matter.CommandMoveToLevelWithOnOff
		payload = map[string]any{
			"level":          levelFromBrightness(brightness),
			"transitionTime": 0,
		}
	}

	if err := d.send(ctx, dev, clusterID, command, payload); err != nil {
		return err
	}

	d.getLogger().Debug("brightness command dispatched",
		"device_id", dev.ID,
		"command", command,
		"brightness", brightness,
	)
	return nil
}

// dispatchTemperature issues the colour temperature command for a
// validated Kelvin value.
func (d *Dispatcher) dispatchTemperature(ctx context.Context, dev *device.Device, kelvin int) error {
	payload := map[string]any{
		"colorTemperatureMireds": miredsFromKelvin(kelvin),
		"transitionTime":         0,
	}

	if err := d.send(ctx, dev, matter.ClusterColorControl, matter.CommandMoveToColorTemperature, payload); err != nil {
		return err
	}

	d.getLogger().Debug("temperature command dispatched",
		"device_id", dev.ID,
		"kelvin", kelvin,
	)
	return nil
}

// send wraps one device_command round trip and folds transport and
// backend failures into the package error taxonomy.
func (d *Dispatcher) send(ctx context.Context, dev *device.Device, clusterID uint32, command string, payload map[string]any) error {
	if !d.commander.IsConnected() {
		return fmt.Errorf("%w: controller link down", ErrBackendUnavailable)
	}

	args := matter.DeviceCommandArgs(dev.NodeID, dev.EndpointID, clusterID, command, payload)
	_, err := d.commander.SendCommand(ctx, matter.CmdDeviceCommand, args)
	if err == nil {
		return nil
	}

	d.getLogger().Warn("device command failed",
		"device_id", dev.ID,
		"command", command,
		"error", err,
	)

	switch {
	case errors.Is(err, matter.ErrNotConnected), errors.Is(err, matter.ErrClosed):
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	case errors.Is(err, matter.ErrCommandFailed):
		return fmt.Errorf("%w: %w", ErrCommandRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
}

// levelFromBrightness converts a [0.0, 1.0] fraction to a LevelControl
// level. Positive fractions never round down to zero: level 0 would
// read back as "off" for a request that asked for light.
func levelFromBrightness(brightness float64) int {
	level := int(math.Round(brightness * matter.MaxLevel))
	if level < 1 {
		level = 1
	}
	if level > matter.MaxLevel {
		level = matter.MaxLevel
	}
	return level
}

// miredsFromKelvin converts Kelvin to the mired scale used by the
// ColorControl cluster.
func miredsFromKelvin(kelvin int) int {
	return int(math.Round(1e6 / float64(kelvin)))
}

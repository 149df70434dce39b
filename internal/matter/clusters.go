package matter

// Matter cluster identifiers used by the hub. IDs follow the Matter
// Application Cluster specification.
const (
	// ClusterOnOff controls and reports power state.
	ClusterOnOff uint32 = 6

	// ClusterLevelControl controls and reports dim level (0-254).
	ClusterLevelControl uint32 = 8

	// ClusterBooleanState reports contact sensor state.
	ClusterBooleanState uint32 = 69

	// ClusterColorControl controls and reports colour temperature.
	ClusterColorControl uint32 = 768

	// ClusterIlluminanceMeasurement reports ambient light level.
	ClusterIlluminanceMeasurement uint32 = 1024

	// ClusterTemperatureMeasurement reports temperature in 0.01 °C.
	ClusterTemperatureMeasurement uint32 = 1026

	// ClusterPressureMeasurement reports pressure in 0.1 hPa.
	ClusterPressureMeasurement uint32 = 1027

	// ClusterRelativeHumidityMeasurement reports humidity in 0.01 %.
	ClusterRelativeHumidityMeasurement uint32 = 1029

	// ClusterOccupancySensing reports occupancy as a bitmap; bit 0 is
	// the occupied flag.
	ClusterOccupancySensing uint32 = 1030
)

// AttributeColorTemperature is the ColorTemperatureMireds attribute of
// the ColorControl cluster. The measurement clusters and OnOff all
// report through attribute 0.
const AttributeColorTemperature uint32 = 7

// Cluster commands the hub issues through device_command.
const (
	// CommandOn powers an OnOff endpoint on.
	CommandOn = "On"

	// CommandOff powers an OnOff endpoint off.
	CommandOff = "Off"

	// CommandMoveToLevelWithOnOff sets the dim level and implies power-on.
	CommandMoveToLevelWithOnOff = "MoveToLevelWithOnOff"

	// CommandMoveToColorTemperature sets the colour temperature in mireds.
	CommandMoveToColorTemperature = "MoveToColorTemperature"
)

// MaxLevel is the LevelControl cluster's maximum level value.
const MaxLevel = 254

// Package telemetry streams device readings to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for the one job
// this bridge has for a time-series store: recording the sensor
// readings and occupancy transitions that flow through the cache, so
// history beyond the in-memory occupancy window lives somewhere
// queryable.
//
// # Usage
//
//	sink, err := telemetry.Connect(cfg.Telemetry)
//	if err != nil {
//	    // telemetry.ErrDisabled when turned off in config
//	}
//	defer sink.Close()
//
//	sink.WriteReading("dev_12_1", "temperature", 21.5)
//	sink.WriteOccupancy("dev_7_2", true)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Writes are non-blocking; batch errors surface through the SetOnError
// callback. A sink failure never fails the reading that triggered it.
package telemetry

// Package imu implements the ~100Hz I²C IMU poller from §4.2: it reads
// raw accelerometer/gyro registers over the shared I²C bus and applies a
// zero-offset calibration computed once at startup, held inside the
// handler as the spec requires.
package imu

import (
	"context"
	"fmt"

	"github.com/SamSkjord/opentpt/internal/i2cbus"
	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

const (
	regAccelStart = 0x3B // MPU6050-style register map
	regGyroStart  = 0x43
	accelLSBPerG  = 16384.0
	gyroLSBPerDPS = 131.0

	calibrationSamples = 200
)

// Reader implements handler.Reader[models.IMUReading].
type Reader struct {
	bus  *i2cbus.Bus
	addr uint16
	name string

	offset models.IMUReading
}

// New constructs an IMU reader on the shared bus at the given I²C
// address, registering itself on the bus's polling order under name.
func New(bus *i2cbus.Bus, addr uint16, name string) *Reader {
	return &Reader{bus: bus, addr: addr, name: name}
}

// Init registers the device on the shared bus and computes the
// zero-offset calibration by averaging calibrationSamples readings taken
// with the vehicle assumed stationary at startup.
func (r *Reader) Init(ctx context.Context) error {
	r.bus.Register(r.name)

	var sum models.IMUReading
	for i := 0; i < calibrationSamples; i++ {
		raw, err := r.readRaw(ctx)
		if err != nil {
			return fmt.Errorf("%w: calibrating imu at 0x%02x: %v", handler.ErrDeviceAbsent, r.addr, err)
		}
		sum.AccelX += raw.AccelX
		sum.AccelY += raw.AccelY
		sum.AccelZ += raw.AccelZ - 1.0 // gravity on the Z axis is not offset
		sum.GyroX += raw.GyroX
		sum.GyroY += raw.GyroY
		sum.GyroZ += raw.GyroZ
	}
	n := float64(calibrationSamples)
	r.offset = models.IMUReading{
		AccelX: sum.AccelX / n, AccelY: sum.AccelY / n, AccelZ: sum.AccelZ / n,
		GyroX: sum.GyroX / n, GyroY: sum.GyroY / n, GyroZ: sum.GyroZ / n,
	}
	return nil
}

// Read returns one zero-offset-corrected sample.
func (r *Reader) Read(ctx context.Context) (models.IMUReading, error) {
	raw, err := r.readRaw(ctx)
	if err != nil {
		return models.IMUReading{}, fmt.Errorf("imu: %w", err)
	}
	return models.IMUReading{
		AccelX: raw.AccelX - r.offset.AccelX,
		AccelY: raw.AccelY - r.offset.AccelY,
		AccelZ: raw.AccelZ - r.offset.AccelZ,
		GyroX:  raw.GyroX - r.offset.GyroX,
		GyroY:  raw.GyroY - r.offset.GyroY,
		GyroZ:  raw.GyroZ - r.offset.GyroZ,
	}, nil
}

func (r *Reader) readRaw(ctx context.Context) (models.IMUReading, error) {
	accel := make([]byte, 6)
	if err := r.bus.Tx(ctx, r.addr, []byte{regAccelStart}, accel); err != nil {
		return models.IMUReading{}, fmt.Errorf("reading accel registers: %w", err)
	}
	gyro := make([]byte, 6)
	if err := r.bus.Tx(ctx, r.addr, []byte{regGyroStart}, gyro); err != nil {
		return models.IMUReading{}, fmt.Errorf("reading gyro registers: %w", err)
	}
	return models.IMUReading{
		AccelX: be16(accel, 0) / accelLSBPerG,
		AccelY: be16(accel, 2) / accelLSBPerG,
		AccelZ: be16(accel, 4) / accelLSBPerG,
		GyroX:  be16(gyro, 0) / gyroLSBPerDPS,
		GyroY:  be16(gyro, 2) / gyroLSBPerDPS,
		GyroZ:  be16(gyro, 4) / gyroLSBPerDPS,
	}, nil
}

func be16(b []byte, off int) float64 {
	return float64(int16(uint16(b[off])<<8 | uint16(b[off+1])))
}

// Close unregisters the device from the shared bus's polling order.
func (r *Reader) Close() error {
	r.bus.Unregister(r.name)
	return nil
}

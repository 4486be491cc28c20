package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// BootConfig is the static, operator-supplied configuration read once at
// process start from /etc/opentpt/config.yml. Anything the driver can
// reasonably change at runtime instead lives in Settings.
type BootConfig struct {
	Control  ControlConfig  `mapstructure:"control"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Serial   SerialConfig   `mapstructure:"serial"`
	OBD      OBDConfig      `mapstructure:"obd"`
	CANBus   CANBusConfig   `mapstructure:"can_bus"`
	I2C      I2CConfig      `mapstructure:"i2c"`
	Renderer RendererConfig `mapstructure:"renderer"`
}

type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

type StorageConfig struct {
	USBMount  string `mapstructure:"usb_mount"`
	LocalHome string `mapstructure:"local_home"`
}

type SerialConfig struct {
	GPSSerialPort string `mapstructure:"gps_serial_port"`
	GPSBaud       int    `mapstructure:"gps_baud"`

	TPMSSerialPort string `mapstructure:"tpms_serial_port"`
	TPMSBaud       int    `mapstructure:"tpms_baud"`

	OBDAdapterPort string `mapstructure:"obd_adapter_port"`
	OBDAdapterBaud int    `mapstructure:"obd_adapter_baud"`
}

type OBDConfig struct {
	PollIntervalS     float64  `mapstructure:"poll_interval_s"`
	DisableAfterNACKs int      `mapstructure:"disable_after_nacks"`
	PIDs              []string `mapstructure:"pids"`
}

type CANBusConfig struct {
	CornerChannel     string `mapstructure:"corner_channel"`
	RadarChannel      string `mapstructure:"radar_channel"`
	FrontRadarChannel string `mapstructure:"front_radar_channel"`
	CarChannel        string `mapstructure:"car_channel"`
}

// I2CConfig names the shared I²C bus device and the IMU's address on it,
// per §4.2/§5's single-bus-lock resource model.
type I2CConfig struct {
	BusPath string `mapstructure:"bus_path"`
	IMUAddr uint16 `mapstructure:"imu_addr"`
}

type RendererConfig struct {
	TargetFPS       int `mapstructure:"target_fps"`
	StaleAfterMs    int `mapstructure:"stale_after_ms"`
	CrashRetryLimit int `mapstructure:"crash_retry_limit"`
}

type configRoot struct {
	OpenTPT BootConfig `mapstructure:"opentpt"`
}

// LoadBootConfig reads path (a YAML document rooted at an `opentpt:`
// key), applies env var overrides (OPENTPT_LOG_LEVEL etc.), and fills in
// defaults for anything unset.
func LoadBootConfig(path string) (*BootConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read boot config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setBootDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal boot config: %w", err)
	}
	cfg := root.OpenTPT

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("boot config validation failed: %w", err)
	}

	return &cfg, nil
}

func setBootDefaults(v *viper.Viper) {
	v.SetDefault("opentpt.control.socket", "/var/run/opentpt.sock")
	v.SetDefault("opentpt.control.pid_file", "/var/run/opentpt.pid")

	v.SetDefault("opentpt.log.level", "info")
	v.SetDefault("opentpt.log.dir", "logs")
	v.SetDefault("opentpt.log.max_size_mb", 50)
	v.SetDefault("opentpt.log.max_age_days", 14)
	v.SetDefault("opentpt.log.max_backups", 14)

	v.SetDefault("opentpt.metrics.enabled", true)
	v.SetDefault("opentpt.metrics.listen", ":9090")
	v.SetDefault("opentpt.metrics.path", "/metrics")

	v.SetDefault("opentpt.storage.usb_mount", "/mnt/usb/.opentpt")
	v.SetDefault("opentpt.storage.local_home", "~/.opentpt")

	v.SetDefault("opentpt.serial.gps_serial_port", "/dev/ttyUSB0")
	v.SetDefault("opentpt.serial.gps_baud", 9600)
	v.SetDefault("opentpt.serial.tpms_serial_port", "/dev/ttyUSB1")
	v.SetDefault("opentpt.serial.tpms_baud", 19200)
	v.SetDefault("opentpt.serial.obd_adapter_port", "/dev/ttyUSB2")
	v.SetDefault("opentpt.serial.obd_adapter_baud", 38400)

	v.SetDefault("opentpt.obd.poll_interval_s", 0.1)
	v.SetDefault("opentpt.obd.disable_after_nacks", 5)

	v.SetDefault("opentpt.can_bus.corner_channel", "can_b2_0")
	v.SetDefault("opentpt.can_bus.radar_channel", "can0")
	v.SetDefault("opentpt.can_bus.front_radar_channel", "can1")
	v.SetDefault("opentpt.can_bus.car_channel", "can1")

	v.SetDefault("opentpt.i2c.bus_path", "/dev/i2c-1")
	v.SetDefault("opentpt.i2c.imu_addr", 0x68)

	v.SetDefault("opentpt.renderer.target_fps", 60)
	v.SetDefault("opentpt.renderer.stale_after_ms", 1000)
	v.SetDefault("opentpt.renderer.crash_retry_limit", 5)
}

func (c BootConfig) validate() error {
	if c.OBD.PollIntervalS <= 0 {
		return fmt.Errorf("obd.poll_interval_s must be positive, got %v", c.OBD.PollIntervalS)
	}
	if c.Renderer.TargetFPS <= 0 {
		return fmt.Errorf("renderer.target_fps must be positive, got %v", c.Renderer.TargetFPS)
	}
	return nil
}

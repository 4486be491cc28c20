// Package config handles both the boot-time static configuration and
// the runtime, user-editable settings.json described in the external
// interfaces section of the design.
package config

// Settings is the runtime, user-editable configuration persisted to
// settings.json. Every field is optional; zero values fall back to the
// boot Config's defaults at the call site that consumes them.
type Settings struct {
	Units      UnitsSettings      `json:"units" mapstructure:"units"`
	Display    DisplaySettings    `json:"display" mapstructure:"display"`
	Thresholds ThresholdsSettings `json:"thresholds" mapstructure:"thresholds"`
	Camera     CameraSettings     `json:"camera" mapstructure:"camera"`
	Radar      RadarSettings      `json:"radar" mapstructure:"radar"`
	CoPilot    CoPilotSettings    `json:"copilot" mapstructure:"copilot"`
	PitTimer   PitTimerSettings   `json:"pit_timer" mapstructure:"pit_timer"`
	TyreTemps  TyreTempsSettings  `json:"tyre_temps" mapstructure:"tyre_temps"`
	Fuel       FuelSettings       `json:"fuel" mapstructure:"fuel"`
}

type UnitsSettings struct {
	Temp     string `json:"temp" mapstructure:"temp"`         // "C" | "F"
	Pressure string `json:"pressure" mapstructure:"pressure"` // "PSI" | "BAR" | "kPa"
	Speed    string `json:"speed" mapstructure:"speed"`       // "kmh" | "mph"
}

type DisplaySettings struct {
	Brightness   float64      `json:"brightness" mapstructure:"brightness"` // 0.0..1.0
	PagesEnabled PagesEnabled `json:"pages_enabled" mapstructure:"pages_enabled"`
}

type PagesEnabled struct {
	Telemetry bool `json:"telemetry" mapstructure:"telemetry"`
	GMeter    bool `json:"gmeter" mapstructure:"gmeter"`
	Lap       bool `json:"lap" mapstructure:"lap"`
	Fuel      bool `json:"fuel" mapstructure:"fuel"`
	CoPilot   bool `json:"copilot" mapstructure:"copilot"`
}

type ThresholdsSettings struct {
	Tyre  ThresholdRange `json:"tyre" mapstructure:"tyre"`
	Brake ThresholdRange `json:"brake" mapstructure:"brake"`
	Boost ThresholdRange `json:"boost" mapstructure:"boost"`
	Shift ThresholdRange `json:"shift" mapstructure:"shift"`
}

type ThresholdRange struct {
	WarnAt     float64 `json:"warn_at" mapstructure:"warn_at"`
	CriticalAt float64 `json:"critical_at" mapstructure:"critical_at"`
}

type CameraSettings struct {
	Rear  CameraSide `json:"rear" mapstructure:"rear"`
	Front CameraSide `json:"front" mapstructure:"front"`
}

type CameraSide struct {
	Mirror   bool `json:"mirror" mapstructure:"mirror"`
	Rotation int  `json:"rotation" mapstructure:"rotation"` // degrees: 0, 90, 180, 270
}

type RadarSettings struct {
	Rear  RadarUnit `json:"rear" mapstructure:"rear"`
	Front RadarUnit `json:"front" mapstructure:"front"`
}

type RadarUnit struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	EmitsKeepAlive bool `json:"emits_keepalive" mapstructure:"emits_keepalive"`
}

type CoPilotSettings struct {
	Enabled      bool    `json:"enabled" mapstructure:"enabled"`
	Mode         string  `json:"mode" mapstructure:"mode"` // "just_drive" | "route_follow"
	AudioEnabled bool    `json:"audio_enabled" mapstructure:"audio_enabled"`
	LookaheadM   float64 `json:"lookahead_m" mapstructure:"lookahead_m"`
}

type PitTimerSettings struct {
	Mode          string  `json:"mode" mapstructure:"mode"` // "entrance_to_exit" | "stationary_only"
	SpeedLimitKMH float64 `json:"speed_limit_kmh" mapstructure:"speed_limit_kmh"`
	MinStopS      float64 `json:"min_stop_s" mapstructure:"min_stop_s"`
}

type TyreTempsSettings struct {
	Flip TyreFlip `json:"flip" mapstructure:"flip"`
}

type TyreFlip struct {
	FL bool `json:"FL" mapstructure:"FL"`
	FR bool `json:"FR" mapstructure:"FR"`
	RL bool `json:"RL" mapstructure:"RL"`
	RR bool `json:"RR" mapstructure:"RR"`
}

// FuelSettings is not named in the spec's dotted-key list verbatim but
// is required by the fuel tracker's Open Question resolution: the
// refuel-detection threshold has no built-in default and must be set
// here before the tracker will report refuel events.
type FuelSettings struct {
	RefuelThresholdPct float64 `json:"refuel_threshold_pct" mapstructure:"refuel_threshold_pct"`
	TankLiters         float64 `json:"tank_liters" mapstructure:"tank_liters"`
	SmoothingWindow    int     `json:"smoothing_window" mapstructure:"smoothing_window"`
	SmoothingMethod    string  `json:"smoothing_method" mapstructure:"smoothing_method"` // "median" | "mean"
	WarnAtPct          float64 `json:"warn_at_pct" mapstructure:"warn_at_pct"`
	CriticalAtPct      float64 `json:"critical_at_pct" mapstructure:"critical_at_pct"`
}

// DefaultSettings returns the settings applied when no settings.json
// exists yet (first boot, or USB storage absent).
func DefaultSettings() Settings {
	return Settings{
		Units: UnitsSettings{Temp: "C", Pressure: "PSI", Speed: "kmh"},
		Display: DisplaySettings{
			Brightness: 0.8,
			PagesEnabled: PagesEnabled{
				Telemetry: true, GMeter: true, Lap: true, Fuel: true, CoPilot: true,
			},
		},
		Thresholds: ThresholdsSettings{
			Tyre:  ThresholdRange{WarnAt: 90, CriticalAt: 110},
			Brake: ThresholdRange{WarnAt: 400, CriticalAt: 600},
			Boost: ThresholdRange{WarnAt: 1.2, CriticalAt: 1.5},
			Shift: ThresholdRange{WarnAt: 6500, CriticalAt: 7200},
		},
		Radar: RadarSettings{
			Rear:  RadarUnit{Enabled: true, EmitsKeepAlive: true},
			Front: RadarUnit{Enabled: false, EmitsKeepAlive: false},
		},
		CoPilot:  CoPilotSettings{Enabled: false, Mode: "just_drive", AudioEnabled: true, LookaheadM: 400},
		PitTimer: PitTimerSettings{Mode: "entrance_to_exit", SpeedLimitKMH: 60, MinStopS: 2},
		Fuel: FuelSettings{
			SmoothingWindow: 8,
			SmoothingMethod: "median",
			WarnAtPct:       20,
			CriticalAtPct:   10,
		},
	}
}

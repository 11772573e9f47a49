// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Axis indexes a body axis of the sensor frame.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Config holds all application configuration values.
// Defaults are the firmware build-time constants; the config file can only override them
// at startup. After Load returns, treat the value as read-only.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string
	MQTTClientIDGPS      string

	// Topics
	TopicPose        string
	TopicSample      string
	TopicGait        string
	TopicStride      string
	TopicStatus      string
	TopicCalibration string
	TopicCommand     string
	TopicGPSSpeed    string

	// Sensor input: "razor" (ADXL345 + ITG-3200 over I2C) or "mock"
	SensorSource string
	I2CBus       string

	// Timing
	TimeSR         float64 // samples per second
	TimeResolution float64 // timestamp ticks per second (1e6 = microseconds)
	MaxDtFactor    float64 // G_Dt upper clamp, in nominal periods
	BlinkRateMS    int

	// Filter bank: taps 3/5/9, kind none|fir_lpf|fir_hpf|iir_lpf|iir_hpf
	FilterTaps  int
	AccelFilter string
	GyroFilter  string

	// DCM
	KpRollPitch      float64
	KiRollPitch      float64
	KpYaw            float64
	KiYaw            float64
	OmegaILimit      float64 // rad/s, per component
	Gravity          float64 // 1G reference in scaled accel units
	AccelWeightSlope float64
	YawMode          string // free|hold|zero

	// Orientation convention
	PitchAxis   Axis
	PitchSign   float64
	RollAxis    Axis
	RollSign    float64
	RollZeroRef float64

	// SWE
	SWEGainAD        float64
	SWEGainAP        float64
	SWEGainVD        float64
	SWEGainVP        float64
	SWEMinDwellMS    int
	SWEHysteresisDeg float64
	SWEMaxStrideMS   int

	// Calibration
	GyroGainDPS     float64 // deg/s per count
	MagReference    float64
	AccelMin        [3]float64
	AccelMax        [3]float64
	MagMin          [3]float64
	MagMax          [3]float64
	GyroOffset      [3]float64
	CalibrationFile string

	// Stillness limits in raw counts for the gyro offset
	CalGyroStillSpan  float64
	CalAccelStillSpan float64

	// Host telemetry
	CommPort   string
	CommBaud   int
	OutputMode string

	// GPS reference
	GPSSerialPort string
	GPSBaudRate   int

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds
	DisplayContent        string

	LogFile string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal/Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex, write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the build-time constants of the firmware.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "gait-producer",
		MQTTClientIDConsole:  "gait-console",
		MQTTClientIDWeb:      "gait-web",
		MQTTClientIDDisplay:  "gait-display",
		MQTTClientIDGPS:      "gait-gps-reference",

		TopicPose:        "gait/pose",
		TopicSample:      "gait/sample",
		TopicGait:        "gait/state",
		TopicStride:      "gait/stride",
		TopicStatus:      "gait/status",
		TopicCalibration: "gait/calibration",
		TopicCommand:     "gait/command",
		TopicGPSSpeed:    "gait/gps/speed",

		SensorSource: "razor",
		I2CBus:       "",

		TimeSR:         200,
		TimeResolution: 1000000,
		MaxDtFactor:    5,
		BlinkRateMS:    100,

		FilterTaps:  5,
		AccelFilter: "fir_lpf",
		GyroFilter:  "none",

		KpRollPitch:      0.1,
		KiRollPitch:      0.00005,
		KpYaw:            1.2,
		KiYaw:            0.00002,
		OmegaILimit:      0.1,
		Gravity:          256,
		AccelWeightSlope: 2,
		YawMode:          "free",

		PitchAxis:   AxisX,
		PitchSign:   1,
		RollAxis:    AxisX,
		RollSign:    1,
		RollZeroRef: 1,

		SWEGainAD:        0.00005,
		SWEGainAP:        0.01,
		SWEGainVD:        0.025,
		SWEGainVP:        0.25,
		SWEMinDwellMS:    100,
		SWEHysteresisDeg: 0.01,
		SWEMaxStrideMS:   2500,

		GyroGainDPS:     0.06957,
		MagReference:    100,
		AccelMin:        [3]float64{-250, -250, -250},
		AccelMax:        [3]float64{250, 250, 250},
		MagMin:          [3]float64{-600, -600, -600},
		MagMax:          [3]float64{600, 600, 600},
		CalibrationFile: "gait_calibration.json",

		CalGyroStillSpan:  40,
		CalAccelStillSpan: 16,

		CommPort:   "",
		CommBaud:   115200,
		OutputMode: "angles",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		WebServerPort: 8080,

		DisplayI2CBus:         "",
		DisplayUpdateInterval: 250,
		DisplayContent:        "gait",

		LogFile: "gait.log",
	}
}

// NominalDt is the sample period in seconds.
func (c *Config) NominalDt() float64 {
	return 1.0 / c.TimeSR
}

// Load reads the configuration file on top of Default and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value

	// Topics
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_SAMPLE":
		c.TopicSample = value
	case "TOPIC_GAIT":
		c.TopicGait = value
	case "TOPIC_STRIDE":
		c.TopicStride = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value
	case "TOPIC_GPS_SPEED":
		c.TopicGPSSpeed = value

	// Sensors
	case "SENSOR_SOURCE":
		if value != "razor" && value != "mock" {
			return fmt.Errorf("SENSOR_SOURCE must be razor or mock, got %q", value)
		}
		c.SensorSource = value
	case "I2C_BUS":
		c.I2CBus = value

	// Timing
	case "TIME_SR":
		c.TimeSR, err = parsePositive(key, value)
	case "TIME_RESOLUTION":
		c.TimeResolution, err = parsePositive(key, value)
	case "MAX_DT_FACTOR":
		c.MaxDtFactor, err = parsePositive(key, value)
		if err == nil && c.MaxDtFactor < 1 {
			return fmt.Errorf("MAX_DT_FACTOR must be >= 1, got %v", c.MaxDtFactor)
		}
	case "BLINK_RATE_MS":
		c.BlinkRateMS, err = parseInt(key, value, 1, 60000)

	// Filter bank
	case "FILTER_TAPS":
		taps, perr := parseInt(key, value, 3, 9)
		if perr != nil {
			return perr
		}
		if taps != 3 && taps != 5 && taps != 9 {
			return fmt.Errorf("FILTER_TAPS must be 3, 5 or 9, got %d", taps)
		}
		c.FilterTaps = taps
	case "ACCEL_FILTER":
		if !validFilterKind(value) {
			return fmt.Errorf("ACCEL_FILTER must be none, fir_lpf, fir_hpf, iir_lpf or iir_hpf, got %q", value)
		}
		c.AccelFilter = value
	case "GYRO_FILTER":
		if !validFilterKind(value) {
			return fmt.Errorf("GYRO_FILTER must be none, fir_lpf, fir_hpf, iir_lpf or iir_hpf, got %q", value)
		}
		c.GyroFilter = value

	// DCM
	case "KP_ROLLPITCH":
		c.KpRollPitch, err = parseNonNegative(key, value)
	case "KI_ROLLPITCH":
		c.KiRollPitch, err = parseNonNegative(key, value)
	case "KP_YAW":
		c.KpYaw, err = parseNonNegative(key, value)
	case "KI_YAW":
		c.KiYaw, err = parseNonNegative(key, value)
	case "OMEGA_I_LIMIT":
		c.OmegaILimit, err = parsePositive(key, value)
	case "GRAVITY":
		c.Gravity, err = parsePositive(key, value)
	case "ACCEL_WEIGHT_SLOPE":
		c.AccelWeightSlope, err = parseNonNegative(key, value)
	case "YAW_MODE":
		if value != "free" && value != "hold" && value != "zero" {
			return fmt.Errorf("YAW_MODE must be free, hold or zero, got %q", value)
		}
		c.YawMode = value

	// Orientation convention
	case "PITCH_AXIS":
		c.PitchAxis, err = parseAxis(key, value)
	case "PITCH_SIGN":
		c.PitchSign, err = parseSign(key, value)
	case "ROLL_AXIS":
		c.RollAxis, err = parseAxis(key, value)
	case "ROLL_SIGN":
		c.RollSign, err = parseSign(key, value)
	case "ROLL_ZREF":
		c.RollZeroRef, err = parseSign(key, value)

	// SWE
	case "SWE_GAIN_AD":
		c.SWEGainAD, err = parseNonNegative(key, value)
	case "SWE_GAIN_AP":
		c.SWEGainAP, err = parseNonNegative(key, value)
	case "SWE_GAIN_VD":
		c.SWEGainVD, err = parseNonNegative(key, value)
		if err == nil && c.SWEGainVD >= 1 {
			return fmt.Errorf("SWE_GAIN_VD must be < 1, got %v", c.SWEGainVD)
		}
	case "SWE_GAIN_VP":
		c.SWEGainVP, err = parseNonNegative(key, value)
	case "SWE_MIN_DWELL_MS":
		c.SWEMinDwellMS, err = parseInt(key, value, 0, 2000)
	case "SWE_HYSTERESIS_DEG":
		c.SWEHysteresisDeg, err = parseNonNegative(key, value)
	case "SWE_MAX_STRIDE_MS":
		c.SWEMaxStrideMS, err = parseInt(key, value, 100, 60000)

	// Calibration
	case "GYRO_GAIN_DPS":
		c.GyroGainDPS, err = parsePositive(key, value)
	case "MAG_REFERENCE":
		c.MagReference, err = parsePositive(key, value)
	case "ACCEL_MIN":
		c.AccelMin, err = parseTriple(key, value)
	case "ACCEL_MAX":
		c.AccelMax, err = parseTriple(key, value)
	case "MAG_MIN":
		c.MagMin, err = parseTriple(key, value)
	case "MAG_MAX":
		c.MagMax, err = parseTriple(key, value)
	case "GYRO_OFFSET":
		c.GyroOffset, err = parseTriple(key, value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "CAL_GYRO_STILL_SPAN":
		c.CalGyroStillSpan, err = parsePositive(key, value)
	case "CAL_ACCEL_STILL_SPAN":
		c.CalAccelStillSpan, err = parsePositive(key, value)

	// Host telemetry
	case "COMM_PORT":
		c.CommPort = value
	case "COMM_BAUD":
		c.CommBaud, err = parseInt(key, value, 1200, 4000000)
	case "OUTPUT_MODE":
		if value != "angles" && value != "sensors" && value != "gait" && value != "all" {
			return fmt.Errorf("OUTPUT_MODE must be angles, sensors, gait or all, got %q", value)
		}
		c.OutputMode = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value, 1200, 921600)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1, 65535)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 10, 60000)
	case "DISPLAY_CONTENT":
		switch value {
		case "gait", "pose", "stride", "status":
		default:
			return fmt.Errorf("DISPLAY_CONTENT must be gait, pose, stride or status, got %q", value)
		}
		c.DisplayContent = value

	case "LOG_FILE":
		c.LogFile = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TimeSR <= 0 {
		return fmt.Errorf("TIME_SR must be positive")
	}
	if c.TimeResolution <= 0 {
		return fmt.Errorf("TIME_RESOLUTION must be positive")
	}
	for i := 0; i < 3; i++ {
		if c.AccelMax[i] <= c.AccelMin[i] {
			return fmt.Errorf("ACCEL_MAX must exceed ACCEL_MIN on axis %s", Axis(i))
		}
		if c.MagMax[i] <= c.MagMin[i] {
			return fmt.Errorf("MAG_MAX must exceed MAG_MIN on axis %s", Axis(i))
		}
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

func validFilterKind(v string) bool {
	switch v {
	case "none", "fir_lpf", "fir_hpf", "iir_lpf", "iir_hpf":
		return true
	}
	return false
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be finite, got %q", key, value)
	}
	return f, nil
}

func parsePositive(key, value string) (float64, error) {
	f, err := parseFloat(key, value)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, f)
	}
	return f, nil
}

func parseNonNegative(key, value string) (float64, error) {
	f, err := parseFloat(key, value)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %v", key, f)
	}
	return f, nil
}

func parseInt(key, value string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, n)
	}
	return n, nil
}

func parseSign(key, value string) (float64, error) {
	switch value {
	case "1", "+1":
		return 1, nil
	case "-1":
		return -1, nil
	}
	return 0, fmt.Errorf("%s must be 1 or -1, got %q", key, value)
}

func parseAxis(key, value string) (Axis, error) {
	switch strings.ToLower(value) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("%s must be x, y or z, got %q", key, value)
}

// parseTriple reads "a,b,c" as a per-axis triple.
func parseTriple(key, value string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("%s must be three comma separated values, got %q", key, value)
	}
	for i, p := range parts {
		f, err := parseFloat(key, strings.TrimSpace(p))
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}

package imu

// IMURaw represents a single raw sample as signed register counts.
type IMURaw struct {
	Source string `json:"source"` // "razor" or "mock"

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Mx int16 `json:"mx"` // magnetometer, read but not fused
	My int16 `json:"my"`
	Mz int16 `json:"mz"`
}

// Accel returns the accelerometer counts as floats.
func (r IMURaw) Accel() [3]float64 {
	return [3]float64{float64(r.Ax), float64(r.Ay), float64(r.Az)}
}

// Gyro returns the gyroscope counts as floats.
func (r IMURaw) Gyro() [3]float64 {
	return [3]float64{float64(r.Gx), float64(r.Gy), float64(r.Gz)}
}

// Mag returns the magnetometer counts as floats.
func (r IMURaw) Mag() [3]float64 {
	return [3]float64{float64(r.Mx), float64(r.My), float64(r.Mz)}
}

// Sample is a calibrated sample: accel in GRAVITY units (1G == cfg.Gravity),
// gyro in rad/s, mag in reference units.
type Sample struct {
	Accel [3]float64 `json:"accel"`
	Gyro  [3]float64 `json:"gyro"`
	Mag   [3]float64 `json:"mag"`
}

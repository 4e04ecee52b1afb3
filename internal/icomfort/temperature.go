package icomfort

import "math"

// FToC converts Fahrenheit to Celsius rounded to one decimal, matching how
// the service mirrors setpoint scales.
func FToC(f float64) float64 {
	return math.Round((f-32.0)*5.0/9.0*10.0) / 10.0
}

// CToF converts Celsius to Fahrenheit rounded to one decimal.
func CToF(c float64) float64 {
	return math.Round((c*9.0/5.0+32.0)*10.0) / 10.0
}

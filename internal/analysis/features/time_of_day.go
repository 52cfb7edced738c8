package features

// TimeOfDayRisk buckets hour-of-day into a risk multiplier; hours outside [0,23] wrap.
// Night hours are the riskiest and working hours the calmest.
func TimeOfDayRisk(hour int) float64 {
	hour %= 24
	if hour < 0 {
		hour += 24
	}

	switch {
	case hour <= 4:
		return 0.8
	case hour == 5:
		return 0.6
	case hour <= 8:
		return 0.3
	case hour <= 17:
		return 0.2
	case hour <= 20:
		return 0.3
	case hour == 21:
		return 0.5
	default:
		return 0.8
	}
}

package utils

// IsValidInterval whitelists the ClickHouse toStartOf* interval suffixes the
// stats queries interpolate. Anything else never reaches a query string.
func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}


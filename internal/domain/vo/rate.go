package vo

import "fmt"

// TimerGranularityMillis is the smallest elapsed time the transfer timer
// can resolve. It replaces a zero elapsed time in rate calculations.
const TimerGranularityMillis int64 = 1

// FormatRate returns a human-readable download rate for bytes transferred
// in elapsedMillis. Units step by 1024: B/s, K/s, M/s, GB/s. With pad the
// number is right-justified to seven characters so columns line up.
//
// Both arguments must be non-negative.
func FormatRate(bytes, elapsedMillis int64, pad bool) string {
	if bytes < 0 || elapsedMillis < 0 {
		panic(fmt.Sprintf("vo: negative rate input (bytes=%d, msecs=%d)", bytes, elapsedMillis))
	}
	if elapsedMillis == 0 {
		elapsedMillis = TimerGranularityMillis
	}

	rate := 1000 * float64(bytes) / float64(elapsedMillis)

	var value float64
	var unit string
	switch {
	case rate < float64(KB):
		value, unit = rate, "B/s"
	case rate < float64(MB):
		value, unit = rate/float64(KB), "K/s"
	case rate < float64(GB):
		value, unit = rate/float64(MB), "M/s"
	default:
		value, unit = rate/float64(GB), "GB/s"
	}

	if pad {
		return fmt.Sprintf("%7.2f %s", value, unit)
	}
	return fmt.Sprintf("%.2f %s", value, unit)
}

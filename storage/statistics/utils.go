package statistics

import "strconv"

func formatQuantile(q float64) string {
	return "p" + strconv.FormatFloat(q*100, 'f', -1, 64)
}

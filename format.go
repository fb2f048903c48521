package axionbot

import (
	"fmt"
	"math"
	"time"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// HumanSize renders a byte count using base-1024 units with two decimals.
func HumanSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i < 0 {
		i = 0
	}
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	return fmt.Sprintf("%.2f %s", float64(bytes)/math.Pow(1024, float64(i)), sizeUnits[i])
}

// FormatTime renders a Unix epoch-seconds timestamp as
// "YYYY-MM-DD HH:MM:SS" in UTC.
func FormatTime(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).UTC().Format("2006-01-02 15:04:05")
}

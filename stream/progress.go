package stream

import "strings"

var progressBuckets = []struct {
	percent  int
	keywords []string
}{
	{85, []string{"finaliz", "optimiz", "render"}},
	{60, []string{"generat", "creat"}},
	{25, []string{"extract", "scrap"}},
}

// Progress maps a status message to a coarse completion percentage by
// keyword. The second result is false for messages that match no bucket.
func Progress(message string) (int, bool) {
	msg := strings.ToLower(message)
	for _, b := range progressBuckets {
		for _, k := range b.keywords {
			if strings.Contains(msg, k) {
				return b.percent, true
			}
		}
	}
	return 0, false
}

package plot

import (
	"fmt"
	"strconv"
	"strings"
)

// Outgoing messages are dicts of "key=value" strings; a '#' prefix on the
// key tells the host the value is numeric. Doubles print with 17 significant
// digits so the host round-trips them exactly.

func numField(key string, v int) string {
	return "#" + key + "=" + strconv.Itoa(v)
}

func doubleField(key string, v float64) string {
	return key + "=" + fmt.Sprintf("%.17g", v)
}

func joinSeqs(seqs []int) string {
	parts := make([]string, len(seqs))
	for i, s := range seqs {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ":")
}

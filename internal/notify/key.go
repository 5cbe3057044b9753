package notify

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// EventKey derives a stable key from a template invocation: the same template,
// recipient and data always produce the same key, whatever the map order.
// The outbox and the audit log use it to correlate re-dispatches.
func EventKey(template, recipientID string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(template)
	b.WriteByte(0)
	b.WriteString(recipientID)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(data[k])
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

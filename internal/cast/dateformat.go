package cast

import "strings"

var letterLayout = map[byte]string{
	'd': "02",
	'D': "Mon",
	'j': "2",
	'l': "Monday",
	'F': "January",
	'm': "01",
	'M': "Jan",
	'n': "1",
	'Y': "2006",
	'y': "06",
	'a': "pm",
	'A': "PM",
	'g': "3",
	'G': "15",
	'h': "03",
	'H': "15",
	'i': "04",
	's': "05",
	'u': "000000",
	'v': "000",
	'e': "MST",
	'T': "MST",
	'P': "-07:00",
	'p': "Z07:00",
	'O': "-0700",
	'c': "2006-01-02T15:04:05-07:00",
	'r': "Mon, 02 Jan 2006 15:04:05 -0700",
}

// FormatLayout converts a letter date format such as "Y-m-d H:i:s" into a Go
// time layout. Characters without a Go equivalent are copied as-is; a
// backslash escapes the next one.
func FormatLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == '\\' && i+1 < len(format) {
			i++
			b.WriteByte(format[i])
			continue
		}
		if l, ok := letterLayout[c]; ok {
			b.WriteString(l)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

package catalog

import "strings"

// ColorChar is the formatting prefix understood by game clients.
const ColorChar = '§'

const colorCodes = "0123456789AaBbCcDdEeFfKkLlMmNnOoRrXx"

// Colorize rewrites '&' color codes (e.g. "&6Gold") into client color codes
// ("§6Gold"). An '&' not followed by a known code is left alone.
func Colorize(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	r := []rune(s)
	for i := 0; i < len(r)-1; i++ {
		if r[i] == '&' && strings.ContainsRune(colorCodes, r[i+1]) {
			r[i] = ColorChar
			r[i+1] = []rune(strings.ToLower(string(r[i+1])))[0]
		}
	}
	return string(r)
}

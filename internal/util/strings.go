package util

import "strings"

// ExtractASCII trims a null-padded ASCII field (ExeFS record names,
// NCCH product codes) down to its printable content.
func ExtractASCII(data []byte) string {
	end := len(data)
	for i, b := range data {
		if b == 0 {
			end = i
			break
		}
	}
	return strings.TrimSpace(string(data[:end]))
}

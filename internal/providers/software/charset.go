package software

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// detectCharset guesses the encoding of data, defaulting to utf-8.
func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// toUTF8 transcodes legacy-encoded text. Valid UTF-8 and anything in an
// unknown encoding are returned unchanged.
func toUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	r, err := charset.NewReaderLabel(detectCharset(data), bytes.NewReader(data))
	if err != nil {
		return data
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return out
}

package restore

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding names reported in restore diagnostics
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	EncodingLatin1      = "iso-8859-1"
	EncodingLossy       = "utf-8-lossy"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// windows-1252 leaves these bytes unassigned
var cp1252Undefined = []byte{0x81, 0x8D, 0x8F, 0x90, 0x9D}

func definedInWindows1252(data []byte) bool {
	for _, b := range cp1252Undefined {
		if bytes.IndexByte(data, b) >= 0 {
			return false
		}
	}
	return true
}

type textDecoder struct {
	name    string
	accepts func([]byte) bool
	decoder func() *encoding.Decoder
}

var decoders = []textDecoder{
	{
		name:    EncodingWindows1252,
		accepts: definedInWindows1252,
		decoder: charmap.Windows1252.NewDecoder,
	},
	{
		name:    EncodingLatin1,
		accepts: func([]byte) bool { return true },
		decoder: charmap.ISO8859_1.NewDecoder,
	},
}

// DecodeScript turns raw script bytes into text. Valid UTF-8 wins, then
// windows-1252, then ISO-8859-1, then UTF-8 with invalid sequences replaced.
func DecodeScript(data []byte) (string, string) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), EncodingUTF8
	}

	for _, d := range decoders {
		if !d.accepts(data) {
			continue
		}
		text, err := d.decoder().Bytes(data)
		if err == nil {
			return string(text), d.name
		}
	}

	return strings.ToValidUTF8(string(data), "�"), EncodingLossy
}

// mojibake pairs are UTF-8 text that was read back as windows-1252
var mojibake = []struct{ broken, fixed string }{
	{"Ã±", "ñ"},
	{"Ã¡", "á"},
	{"Ã©", "é"},
	{"Ã\u00ad", "í"},
	{"Ã³", "ó"},
	{"Ãº", "ú"},
	{"Ã‘", "Ñ"},
	{"Ã‰", "É"},
	{"Ã“", "Ó"},
	{"Ãš", "Ú"},
	{"Ã¼", "ü"},
	{"Â¿", "¿"},
	{"Â¡", "¡"},
}

var mojibakeReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, len(mojibake)*2)
	for _, m := range mojibake {
		pairs = append(pairs, m.broken, m.fixed)
	}
	return strings.NewReplacer(pairs...)
}()

// FixMojibake repairs double-encoded accented characters and reports which
// sequences were found
func FixMojibake(text string) (string, []string) {
	var found []string
	for _, m := range mojibake {
		if strings.Contains(text, m.broken) {
			found = append(found, m.broken+"→"+m.fixed)
		}
	}
	if len(found) == 0 {
		return text, nil
	}
	return mojibakeReplacer.Replace(text), found
}

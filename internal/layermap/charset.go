package layermap

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// defaultCharset applies when neither a .cpg file nor an override names one.
const defaultCharset = "ISO-8859-1"

// codePageAliases maps the short code page names ESRI tools write into
// .cpg files onto IANA charset names.
var codePageAliases = map[string]string{
	"UTF8":   "UTF-8",
	"65001":  "UTF-8",
	"437":    "IBM437",
	"850":    "IBM850",
	"852":    "IBM852",
	"866":    "IBM866",
	"1250":   "windows-1250",
	"1251":   "windows-1251",
	"1252":   "windows-1252",
	"1253":   "windows-1253",
	"1254":   "windows-1254",
	"1255":   "windows-1255",
	"1256":   "windows-1256",
	"1257":   "windows-1257",
	"1258":   "windows-1258",
	"88591":  "ISO-8859-1",
	"88592":  "ISO-8859-2",
	"88595":  "ISO-8859-5",
	"88597":  "ISO-8859-7",
	"88599":  "ISO-8859-9",
	"885915": "ISO-8859-15",
	"LATIN1": "ISO-8859-1",
}

// resolveCharset picks the attribute encoding: explicit override first,
// then the layer's .cpg file, then ISO-8859-1. It returns the name it used.
func resolveCharset(base, override string) (encoding.Encoding, string, error) {
	name := strings.TrimSpace(override)
	if name == "" {
		name = readCPG(base)
	}
	if name == "" {
		return charmap.ISO8859_1, defaultCharset, nil
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, "", err
	}
	return enc, name, nil
}

func readCPG(base string) string {
	for _, ext := range []string{".cpg", ".CPG"} {
		if b, err := os.ReadFile(base + ext); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return ""
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	n := strings.TrimSpace(name)
	if alias, ok := codePageAliases[strings.ToUpper(n)]; ok {
		n = alias
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
	return enc, nil
}

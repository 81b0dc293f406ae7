package harness

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// htmlEncodingPrefix fixtures embed the page codec in their name, e.g.
// html-encoding-cp1251. Their html reports are decoded with that codec;
// everything else is UTF-8.
const htmlEncodingPrefix = "html-encoding-"

// caseEncoding returns the codec for a case's report files, or nil for
// UTF-8. The codec label is resolved against the WHATWG encoding index.
func caseEncoding(fixtureName, format string) (encoding.Encoding, error) {
	if format != "html" || !strings.HasPrefix(fixtureName, htmlEncodingPrefix) {
		return nil, nil
	}
	label := strings.TrimPrefix(fixtureName, htmlEncodingPrefix)
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q in fixture name: %w", label, err)
	}
	return enc, nil
}

// decodeContent converts raw report bytes to a UTF-8 string. A nil codec
// passes the bytes through unchanged.
func decodeContent(raw []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		return string(raw), nil
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode report content: %w", err)
	}
	return string(decoded), nil
}

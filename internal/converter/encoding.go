package converter

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ToUTF8 normalizes article HTML to UTF-8. The Help Center API declares
// UTF-8, but legacy article bodies occasionally carry other charsets;
// hashing and segmentation must see one canonical byte form.
func ToUTF8(content []byte) ([]byte, error) {
	if utf8.Valid(content) {
		return content, nil
	}

	_, name, _ := charset.DetermineEncoding(content, "")
	if name == "" || name == "utf-8" {
		return content, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		// Unknown encoding, pass through
		return content, nil
	}

	reader := transform.NewReader(bytes.NewReader(content), enc.NewDecoder())
	return io.ReadAll(reader)
}

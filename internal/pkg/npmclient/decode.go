package npmclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeBody undoes the Content-Encoding negotiated in doRequest.
// Unknown encodings are an error rather than being parsed as JSON.
func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	if len(body) == 0 || encoding == "" || encoding == "identity" {
		return body, nil
	}

	var reader io.Reader
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}

	decoded, err := io.ReadAll(io.LimitReader(reader, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	if len(decoded) > maxBodySize {
		return nil, fmt.Errorf("decoded body too large (exceeds %d bytes)", maxBodySize)
	}
	return decoded, nil
}

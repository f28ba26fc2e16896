package pipeline_download

import (
	"fmt"
	"path"
	"strings"

	"github.com/alioygur/is"
	"github.com/t2bot/patient-media-repo/types"
)

// downloadName is the filename offered for a variant. The extension always
// matches what is actually served.
func downloadName(m *types.MediaArtifact, v types.Variant) string {
	base := strings.TrimSuffix(m.OriginalFilename, path.Ext(m.OriginalFilename))
	if base == "" {
		base = "media"
	}
	if v == types.VariantOriginal {
		return base + path.Ext(m.StoragePath)
	}
	return base + "-" + strings.TrimPrefix(string(v), "derivative:") + ".jpg"
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

// encodeExtValue percent-encodes s as an RFC 5987 ext-value.
func encodeExtValue(s string) string {
	b := strings.Builder{}
	b.WriteString("UTF-8''")
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func asciiFallback(s string) string {
	b := strings.Builder{}
	for _, r := range s {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func contentDisposition(disposition string, name string) string {
	if is.ASCII(name) && !strings.ContainsAny(name, "\"\\") && asciiFallback(name) == name {
		return disposition + "; filename=\"" + name + "\""
	}
	return disposition + "; filename=\"" + asciiFallback(name) + "\"; filename*=" + encodeExtValue(name)
}

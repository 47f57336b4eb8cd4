package transform

import "strings"

// Format is the closed set of encode targets the pipeline supports. Keeping
// it a named type forces encode dispatch through an explicit switch instead
// of free-form strings.
type Format string

const (
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatAVIF Format = "avif"
)

// ParseFormat normalizes a requested format string. "jpg" is folded into
// jpeg. The boolean reports whether the input named a supported format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "webp":
		return FormatWebP, true
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "avif":
		return FormatAVIF, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type announced for the encoded derivative.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

func (f Format) String() string { return string(f) }

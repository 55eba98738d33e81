package enums

import "fmt"

// MediaType maps to the media_type_enum enum in Postgres.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

var validMediaTypes = []MediaType{
	MediaTypeImage,
	MediaTypeVideo,
}

// IsValid reports whether the value matches the canonical media type enum.
func (t MediaType) IsValid() bool {
	for _, candidate := range validMediaTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseMediaType converts raw input into MediaType.
func ParseMediaType(value string) (MediaType, error) {
	for _, candidate := range validMediaTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid media type %q", value)
}

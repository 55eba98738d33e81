package enums

import "fmt"

// VideoStyle selects the rendering style for video generations.
type VideoStyle string

const (
	VideoStylePerformance VideoStyle = "performance"
	VideoStylePremium     VideoStyle = "premium"
	VideoStyleUGC         VideoStyle = "ugc"
	VideoStyleProduct     VideoStyle = "product"
	VideoStyleDynamic     VideoStyle = "dynamic"
)

var validVideoStyles = []VideoStyle{
	VideoStylePerformance,
	VideoStylePremium,
	VideoStyleUGC,
	VideoStyleProduct,
	VideoStyleDynamic,
}

// IsValid reports whether the value matches the canonical style enum.
func (s VideoStyle) IsValid() bool {
	for _, candidate := range validVideoStyles {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseVideoStyle converts raw input into VideoStyle.
func ParseVideoStyle(value string) (VideoStyle, error) {
	for _, candidate := range validVideoStyles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid video style %q", value)
}

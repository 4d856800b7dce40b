package rule

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts either a bare integer (seconds, matching the
// `window`/`within` wording) or a Go duration string like "60s". Either
// decodes to the same time.Duration.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asInt int
	if err := node.Decode(&asInt); err == nil {
		*d = Duration(time.Duration(asInt) * time.Second)
		return nil
	}
	var asStr string
	if err := node.Decode(&asStr); err != nil {
		return fmt.Errorf("duration: expected integer seconds or duration string, got %q", node.Value)
	}
	parsed, err := time.ParseDuration(asStr)
	if err != nil {
		return fmt.Errorf("duration: invalid duration string %q: %w", asStr, err)
	}
	*d = Duration(parsed)
	return nil
}

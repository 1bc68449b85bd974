package engine

import (
	"fmt"
	"strings"
)

// Capability is a bitset of operations a driver supports for one format.
// The numeric values are stable and gaps are reserved.
type Capability uint32

const (
	CapOpen            Capability = 1
	CapOpenEncrypted   Capability = 2
	CapOpenVolumed     Capability = 4
	CapGetComment      Capability = 64
	CapExtractContent  Capability = 128
	CapStreamContent   Capability = 256
	CapAppend          Capability = 4096
	CapDelete          Capability = 8192
	CapSetComment      Capability = 16384
	CapCreate          Capability = 1048576
	CapCreateEncrypted Capability = 2097152
	CapCreateInString  Capability = 4194304
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapOpen, "OPEN"},
	{CapOpenEncrypted, "OPEN_ENCRYPTED"},
	{CapOpenVolumed, "OPEN_VOLUMED"},
	{CapGetComment, "GET_COMMENT"},
	{CapExtractContent, "EXTRACT_CONTENT"},
	{CapStreamContent, "STREAM_CONTENT"},
	{CapAppend, "APPEND"},
	{CapDelete, "DELETE"},
	{CapSetComment, "SET_COMMENT"},
	{CapCreate, "CREATE"},
	{CapCreateEncrypted, "CREATE_ENCRYPTED"},
	{CapCreateInString, "CREATE_IN_STRING"},
}

// Has reports whether every bit of other is set.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Any reports whether at least one bit of other is set.
func (c Capability) Any(other Capability) bool {
	return c&other != 0
}

// Names returns the names of the set bits in ascending bit order.
func (c Capability) Names() []string {
	var names []string
	for _, cn := range capabilityNames {
		if c.Has(cn.cap) {
			names = append(names, cn.name)
		}
	}
	return names
}

func (c Capability) String() string {
	if c == 0 {
		return "NONE"
	}
	return strings.Join(c.Names(), "|")
}

// ParseCapability parses a single capability name or a "|"-separated list.
func ParseCapability(s string) (Capability, error) {
	var out Capability
	for part := range strings.SplitSeq(s, "|") {
		name := strings.ToUpper(strings.TrimSpace(part))
		found := false
		for _, cn := range capabilityNames {
			if cn.name == name {
				out |= cn.cap
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown capability %q", part)
		}
	}
	return out, nil
}

func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Capability) UnmarshalText(text []byte) error {
	if string(text) == "NONE" {
		*c = 0
		return nil
	}
	parsed, err := ParseCapability(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

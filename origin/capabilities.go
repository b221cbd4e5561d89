package origin

import "slices"

// Capability represents a capability that an origin can provide
type Capability string

const (
	CapabilityFetch        Capability = "fetch"
	CapabilityConditional  Capability = "conditional"
	CapabilityRandomAccess Capability = "random_access"
	CapabilityIndex        Capability = "index"
	CapabilityPublish      Capability = "publish"
)

// Capabilities describes what an origin supports
type Capabilities struct {
	Capabilities  []Capability `json:"capabilities"`
	MaxObjectSize int64        `json:"max_object_size"`
}

// Contains checks if a capability is supported
func (c *Capabilities) Contains(capability Capability) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Capabilities, capability)
}

// Describe collects the capabilities o offers through its optional
// interfaces, in addition to the ones it reports itself.
func Describe(o Origin) *Capabilities {
	c := &Capabilities{}
	if reported := o.GetCapabilities(); reported != nil {
		c.Capabilities = append(c.Capabilities, reported.Capabilities...)
		c.MaxObjectSize = reported.MaxObjectSize
	}

	add := func(capability Capability) {
		if !c.Contains(capability) {
			c.Capabilities = append(c.Capabilities, capability)
		}
	}

	add(CapabilityFetch)
	if _, ok := o.(RandomAccess); ok {
		add(CapabilityRandomAccess)
	}
	if _, ok := o.(Indexer); ok {
		add(CapabilityIndex)
	}
	if _, ok := o.(Publisher); ok {
		add(CapabilityPublish)
	}

	return c
}

// Package pushdown rewrites projection descriptors so that a data source
// can evaluate them natively. The strategy inspects the source's
// capability profile and the projection's complexity, then flattens,
// filters and trims the projection. It never fails outward: any skip or
// failure returns the caller's descriptor unchanged.
package pushdown

// Field is one projection entry. Include selects polarity (true keeps
// the field, false strips it); Nested optionally refines the projection
// of a sub-document.
type Field struct {
	Name    string
	Include bool
	Nested  *Descriptor
}

// Descriptor is an ordered projection specification. Field order is the
// caller's and is preserved across rewrites; priority trimming resolves
// ties by it.
type Descriptor struct {
	Fields   []Field
	Metadata map[string]any
}

// Lookup returns the first field with the given name.
func (d *Descriptor) Lookup(name string) (Field, bool) {
	if d == nil {
		return Field{}, false
	}
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in descriptor order.
func (d *Descriptor) Names() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

// Len returns the number of top-level fields, tolerating nil.
func (d *Descriptor) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Fields)
}

// Clone deep-copies the descriptor, its nested descriptors and its
// metadata.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	out := &Descriptor{
		Fields:   make([]Field, len(d.Fields)),
		Metadata: copyMetadata(d.Metadata),
	}
	for i, f := range d.Fields {
		out.Fields[i] = Field{Name: f.Name, Include: f.Include, Nested: f.Nested.Clone()}
	}
	return out
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Capabilities describes what projection shapes a data source can
// evaluate natively.
type Capabilities struct {
	SupportsProjection  bool
	SupportsInclusion   bool
	SupportsExclusion   bool
	SupportsNested      bool
	MaxProjectionDepth  int
	MaxProjectionFields int
}

// DefaultCapabilities is the profile assumed for sources that do not
// describe themselves: flat inclusion/exclusion projections up to 100
// fields.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		SupportsProjection:  true,
		SupportsInclusion:   true,
		SupportsExclusion:   true,
		SupportsNested:      false,
		MaxProjectionDepth:  1,
		MaxProjectionFields: 100,
	}
}

// DataSource identifies the storage a projection would be pushed into.
// Sources that can describe their projection support also implement
// CapabilityReporter; everything else gets DefaultCapabilities.
type DataSource interface {
	Name() string
}

// CapabilityReporter is the optional self-description of a DataSource.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// Context configures one pushdown attempt.
type Context struct {
	// SupportsProjectionPushdown gates the whole strategy; false means
	// the caller's execution path cannot consume a pushed projection.
	SupportsProjectionPushdown bool

	// DataSource is the target; pushdown without one is a no-op.
	DataSource DataSource

	// Capabilities overrides the data source's own profile when set.
	Capabilities *Capabilities

	// Collection names the data being projected, for cost estimation
	// and logging.
	Collection string
}

// resolveCapabilities picks the effective profile: context override,
// then the source's self-description, then the hard default.
func resolveCapabilities(ctx *Context) Capabilities {
	if ctx != nil && ctx.Capabilities != nil {
		return *ctx.Capabilities
	}
	if ctx != nil && ctx.DataSource != nil {
		if r, ok := ctx.DataSource.(CapabilityReporter); ok {
			return r.Capabilities()
		}
	}
	return DefaultCapabilities()
}

package identity

import "strings"

// NKSeparator separates the components of a composite natural key.
const NKSeparator = "|"

// NKBuilder joins natural key components with NKSeparator. NULL components
// contribute an empty string, so the position of every component is kept.
type NKBuilder struct {
	sb    strings.Builder
	count int
}

// NewNKBuilder returns an empty builder.
func NewNKBuilder() *NKBuilder {
	return &NKBuilder{}
}

// Add appends one component.
func (b *NKBuilder) Add(component any) *NKBuilder {
	if b.count > 0 {
		b.sb.WriteString(NKSeparator)
	}
	b.sb.WriteString(ValueString(component))
	b.count++
	return b
}

// String returns the natural key built so far.
func (b *NKBuilder) String() string {
	return b.sb.String()
}

// BuildNK joins components into a natural key.
func BuildNK(components ...any) string {
	b := NewNKBuilder()
	for _, c := range components {
		b.Add(c)
	}
	return b.String()
}

// ChildNK composes the natural key of an owned row from its owner's natural key.
func ChildNK(parentNK string, subNK any) string {
	return parentNK + NKSeparator + ValueString(subNK)
}

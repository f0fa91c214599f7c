package domain

// DescriptorView is a serializable snapshot of a descriptor subtree.
type DescriptorView struct {
	UniqueID    string           `json:"unique_id" yaml:"unique_id"`
	DisplayName string           `json:"display_name" yaml:"display_name"`
	Type        Type             `json:"type" yaml:"type"`
	Source      string           `json:"source,omitempty" yaml:"source,omitempty"`
	Tags        []Tag            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Children    []DescriptorView `json:"children,omitempty" yaml:"children,omitempty"`
}

// View captures d and its descendants.
func View(d *Descriptor) DescriptorView {
	v := DescriptorView{
		UniqueID:    d.UniqueID().String(),
		DisplayName: d.DisplayName(),
		Type:        d.Type(),
		Tags:        d.Tags(),
	}
	if src := d.Source(); src != nil {
		v.Source = src.String()
	}
	for _, c := range d.Children() {
		v.Children = append(v.Children, View(c))
	}
	return v
}

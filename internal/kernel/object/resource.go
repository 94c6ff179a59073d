package object

// DefaultResourceRights is the rights mask for resource handles.
const DefaultResourceRights = RightDuplicate | RightTransfer | RightRead

// Resource is a named capability token used to gate privileged
// operations; validating possession is its whole job.
type Resource struct {
	Base
	name string
}

// NewResource creates a named resource token.
func NewResource(name string) (*Resource, Rights) {
	return &Resource{Base: NewBase(), name: name}, DefaultResourceRights
}

func (r *Resource) Type() Type   { return TypeResource }
func (r *Resource) Name() string { return r.name }

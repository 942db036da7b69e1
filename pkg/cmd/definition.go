package cmd

// OptionType is the value type of a command option.
type OptionType int

const (
	OptionString OptionType = iota + 1
	OptionInteger
	OptionNumber
	OptionBoolean
	OptionUser
)

func (t OptionType) String() string {
	switch t {
	case OptionString:
		return "string"
	case OptionInteger:
		return "integer"
	case OptionNumber:
		return "number"
	case OptionBoolean:
		return "boolean"
	case OptionUser:
		return "user"
	default:
		return "unknown"
	}
}

// Choice is a predefined or suggested option value.
type Choice struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Option describes one argument of a leaf command.
type Option struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Type         OptionType `json:"type"`
	Required     bool       `json:"required,omitempty"`
	Autocomplete bool       `json:"autocomplete,omitempty"`
	Choices      []Choice   `json:"choices,omitempty"`
}

// Definition is the serialized form of a node handed to the platform on
// publish. Groups carry Children, leaves carry Options.
type Definition struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Group       bool         `json:"group,omitempty"`
	Options     []Option     `json:"options,omitempty"`
	Children    []Definition `json:"children,omitempty"`
}

// IsGroup reports whether the definition describes a command group.
func (d Definition) IsGroup() bool {
	return d.Group
}

// Depth returns the number of levels below and including d.
func (d Definition) Depth() int {
	depth := 0
	for _, c := range d.Children {
		if cd := c.Depth(); cd > depth {
			depth = cd
		}
	}
	return depth + 1
}

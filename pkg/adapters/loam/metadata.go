package loam

// AgentMetadata is the frontmatter of an agent file. The file body holds the
// agent instructions.
//
// Chain may be written as a YAML mapping or as a JSON string.
type AgentMetadata struct {
	UID          string `json:"uid" mapstructure:"uid"`
	Name         string `json:"name" mapstructure:"name"`
	Kind         string `json:"kind" mapstructure:"kind"`
	Desc         string `json:"desc" mapstructure:"desc"`
	SpaceDefault bool   `json:"space_default" mapstructure:"space_default"`
	Provider     string `json:"provider" mapstructure:"provider"`
	Model        string `json:"model" mapstructure:"model"`
	OutFormat    string `json:"out_format" mapstructure:"out_format"`
	PromptTmpl   string `json:"prompt_tmpl" mapstructure:"prompt_tmpl"`
	Chain        any    `json:"chain" mapstructure:"chain"`
}

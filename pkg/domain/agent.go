package domain

import "time"

// AgentKind tells how an agent produces its output.
type AgentKind string

const (
	AgentKindAI    AgentKind = "ai"
	AgentKindLogic AgentKind = "logic"
)

// OutFormat is the output format an agent asks its provider for.
type OutFormat string

const (
	OutFormatText OutFormat = "text"
	OutFormatJSON OutFormat = "json"
)

// Agent is a configured AI persona.
// Empty optional strings (Model, Inst, PromptTmpl, Chain) mean "not set".
type Agent struct {
	ID           int64     `json:"id" mapstructure:"id"`
	UID          string    `json:"uid" mapstructure:"uid"`
	Name         string    `json:"name" mapstructure:"name"`
	Kind         AgentKind `json:"kind" mapstructure:"kind"`
	Desc         string    `json:"desc,omitempty" mapstructure:"desc"`
	SpaceDefault bool      `json:"space_default" mapstructure:"space_default"`
	Provider     string    `json:"provider,omitempty" mapstructure:"provider"`
	Model        string    `json:"model,omitempty" mapstructure:"model"`
	Inst         string    `json:"inst,omitempty" mapstructure:"inst"`
	PromptTmpl   string    `json:"prompt_tmpl,omitempty" mapstructure:"prompt_tmpl"`
	Chain        string    `json:"chain,omitempty" mapstructure:"chain"`
	OutFormat    OutFormat `json:"out_format,omitempty" mapstructure:"out_format"`
	CTime        time.Time `json:"ctime" mapstructure:"ctime"`
	MTime        time.Time `json:"mtime" mapstructure:"mtime"`
}

// AgentForCreate holds the fields accepted when creating or updating an agent.
type AgentForCreate struct {
	UID          string    `json:"uid,omitempty" yaml:"uid"`
	Name         string    `json:"name" yaml:"name"`
	Kind         AgentKind `json:"kind,omitempty" yaml:"kind"`
	Desc         string    `json:"desc,omitempty" yaml:"desc"`
	SpaceDefault bool      `json:"space_default,omitempty" yaml:"space_default"`
	Provider     string    `json:"provider,omitempty" yaml:"provider"`
	Model        string    `json:"model,omitempty" yaml:"model"`
	Inst         string    `json:"inst,omitempty" yaml:"inst"`
	PromptTmpl   string    `json:"prompt_tmpl,omitempty" yaml:"prompt_tmpl"`
	Chain        string    `json:"chain,omitempty" yaml:"chain"`
	OutFormat    OutFormat `json:"out_format,omitempty" yaml:"out_format"`
}

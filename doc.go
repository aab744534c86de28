/*
Package tendril runs multi-agent conversations whose routing is described by
agent chains.

Every agent may carry a chain: a tree of agent calls and conditional branches
evaluated against the text (or JSON) flowing through the conversation. A user
message starts a traversal that is persisted step by step. Each step first
resolves the delegation stack (which agent runs next), then runs that agent
through a provider. When the stack is empty the last output becomes the
agent's answer.

# Usage

	cfg, err := config.Load("tendril.yaml")
	if err != nil {
		log.Fatal(err)
	}

	eng, err := tendril.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	conv, _ := eng.Convs.CreateConv(ctx, "router", "support")
	answer, err := eng.Ask(ctx, conv.ID, `{"category": 1}`)

In a long running process, Start launches the worker so messages added with
Convs.AddMessage are answered in the background.

# Architecture

  - pkg/chain: chain parsing and cursor navigation.
  - pkg/delegation: the delegation stack and its computation.
  - pkg/store: typed repositories over a ports.RowStore (memory, SQLite or Redis).
  - internal/runtime: the Resolve and Run phases of steps.
  - internal/worker: the hub consumer driving conversations forward.
*/
package tendril

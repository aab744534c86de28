/*
Package domain contains the core entities of the Tendril conversation engine.

It is kept free of I/O and persistence concerns. Adapters and the runtime
exchange these types through the interfaces declared in package ports.

# Key Entities

  - Agent: a configured AI persona with a model, instructions and an optional chain.
  - Conversation: a thread between a user and the agent that owns it.
  - Message: one entry in a conversation, authored by the user or by an agent.
  - Step: one persisted execution hop of a message's chain traversal, split
    into a Resolve phase (decide what runs next) and a Run phase (run it).
*/
package domain

/*
Package ports defines the driven ports (interfaces) of the Tendril engine.

These interfaces decouple the runtime from concrete backends, so the same
Resolve/Run logic works over SQLite, Redis or in-memory storage and over any
notification transport.

# Key Interfaces

  - RowStore: generic create/get/list/update/delete over named tables.
  - Hub: publish/subscribe used only to wake workers.
  - Provider: text generation for a model.
  - AnswerSink: records the final answer of a traversal.
*/
package ports

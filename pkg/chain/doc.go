/*
Package chain parses agent chains and walks them.

A chain is an ordered tree of agent nodes and branch nodes. Branch nodes hold
arms, and each arm holds its own ordered list of nodes. Locations in the tree
are addressed by a Cursor, which is an index path from the root:

	[1, 0, 2] = root node 1 -> its arm 0 -> that arm's node 2

The navigator functions (GetElement, Advance, NextAgentCursor) are pure. They
never mutate the chain or the cursor they are given.
*/
package chain

package sqlite

import "github.com/aretw0/tendril/pkg/ports"

// columns lists the known columns of every table. Row keys outside this set
// are rejected before any SQL is built.
var columns = map[string][]string{
	ports.TableAgent: {
		"id", "uid", "name", "kind", "desc", "space_default", "provider", "model",
		"inst", "prompt_tmpl", "chain", "out_format", "ctime", "mtime",
	},
	ports.TableConv: {
		"id", "uid", "agent_id", "title", "work_tnew", "work_tdone", "ctime", "mtime",
	},
	ports.TableMessage: {
		"id", "uid", "conv_id", "orig_msg_id", "author_kind", "agent_id", "content", "ctime", "mtime",
	},
	ports.TableStep: {
		"id", "uid", "conv_id", "orig_msg_id", "first_step_id", "prev_step_id", "closer",
		"call_stack", "call_out", "call_err",
		"resolve_tstart", "resolve_tend", "resolve_model",
		"run_agent_uid", "run_agent_name", "run_tstart", "run_tend", "run_terr",
		"ctime", "mtime",
	},
}

const schema = `
CREATE TABLE IF NOT EXISTS "agent" (
	"id" INTEGER PRIMARY KEY AUTOINCREMENT,
	"uid" TEXT NOT NULL UNIQUE,
	"name" TEXT NOT NULL,
	"kind" TEXT NOT NULL DEFAULT 'ai',
	"desc" TEXT,
	"space_default" INTEGER NOT NULL DEFAULT 0,
	"provider" TEXT,
	"model" TEXT,
	"inst" TEXT,
	"prompt_tmpl" TEXT,
	"chain" TEXT,
	"out_format" TEXT NOT NULL DEFAULT 'text',
	"ctime" INTEGER NOT NULL,
	"mtime" INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS "idx_agent_name" ON "agent"("name");

CREATE TABLE IF NOT EXISTS "conv" (
	"id" INTEGER PRIMARY KEY AUTOINCREMENT,
	"uid" TEXT NOT NULL UNIQUE,
	"agent_id" INTEGER NOT NULL,
	"title" TEXT,
	"work_tnew" INTEGER,
	"work_tdone" INTEGER,
	"ctime" INTEGER NOT NULL,
	"mtime" INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS "message" (
	"id" INTEGER PRIMARY KEY AUTOINCREMENT,
	"uid" TEXT NOT NULL UNIQUE,
	"conv_id" INTEGER NOT NULL,
	"orig_msg_id" INTEGER,
	"author_kind" TEXT NOT NULL,
	"agent_id" INTEGER,
	"content" TEXT NOT NULL,
	"ctime" INTEGER NOT NULL,
	"mtime" INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS "idx_message_conv" ON "message"("conv_id");
CREATE INDEX IF NOT EXISTS "idx_message_orig" ON "message"("orig_msg_id");

CREATE TABLE IF NOT EXISTS "step" (
	"id" INTEGER PRIMARY KEY AUTOINCREMENT,
	"uid" TEXT NOT NULL UNIQUE,
	"conv_id" INTEGER NOT NULL,
	"orig_msg_id" INTEGER NOT NULL,
	"first_step_id" INTEGER,
	"prev_step_id" INTEGER,
	"closer" INTEGER NOT NULL DEFAULT 0,
	"call_stack" TEXT,
	"call_out" TEXT,
	"call_err" TEXT,
	"resolve_tstart" INTEGER,
	"resolve_tend" INTEGER,
	"resolve_model" TEXT,
	"run_agent_uid" TEXT,
	"run_agent_name" TEXT,
	"run_tstart" INTEGER,
	"run_tend" INTEGER,
	"run_terr" INTEGER,
	"ctime" INTEGER NOT NULL,
	"mtime" INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS "idx_step_conv" ON "step"("conv_id");
CREATE INDEX IF NOT EXISTS "idx_step_orig" ON "step"("orig_msg_id");
`

func knownColumn(table, col string) bool {
	for _, c := range columns[table] {
		if c == col {
			return true
		}
	}
	return false
}

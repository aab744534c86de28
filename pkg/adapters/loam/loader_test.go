package loam

import (
	"context"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/tendril/internal/testutils"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byUID(agents []domain.AgentForCreate) map[string]domain.AgentForCreate {
	out := make(map[string]domain.AgentForCreate, len(agents))
	for _, a := range agents {
		out[a.UID] = a
	}
	return out
}

func TestLibrary_Agents(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)

	testutils.WriteAgents(t, tmpDir, map[string]string{
		"router.md": `---
uid: router
name: Router
model: fc-mock-echo-inst
out_format: json
chain:
  nodes:
    - agent: self
    - branch:
        - cond:
            input:
              json_matches:
                pointer: /category
                value: 1
          nodes:
            - agent:
                name: Billing
---
{"category": 1}
`,
		"billing.md": `---
name: Billing
model: fc-mock-echo-prompt
prompt_tmpl: "billing: {{.input}}"
chain: '{"nodes": [{"agent": "self"}]}'
---
You handle billing questions.
`,
		"plain.md": `---
model: fc-mock-echo-inst
---
Just text.
`,
	})

	lib := New(loam.NewTypedRepository[AgentMetadata](repo))
	agents, err := lib.Agents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 3)

	got := byUID(agents)

	router := got["router"]
	assert.Equal(t, "Router", router.Name)
	assert.Equal(t, domain.OutFormatJSON, router.OutFormat)
	assert.Equal(t, `{"category": 1}`, router.Inst)
	c, err := chain.Parse([]byte(router.Chain))
	require.NoError(t, err)
	require.Len(t, c.Nodes, 2)
	branch, ok := c.Nodes[1].(*chain.BranchNode)
	require.True(t, ok)
	require.Len(t, branch.Arms, 1)
	assert.True(t, branch.Arms[0].Cond.Matches(chain.ParseInput(`{"category": 1}`)))

	billing := got["billing"]
	assert.Equal(t, "Billing", billing.Name)
	assert.Equal(t, "billing: {{.input}}", billing.PromptTmpl)
	assert.Equal(t, `{"nodes": [{"agent": "self"}]}`, billing.Chain)
	assert.Equal(t, "You handle billing questions.", billing.Inst)

	plain := got["plain"]
	assert.Equal(t, "plain", plain.Name)
	assert.Empty(t, plain.Chain)
}

func TestLibrary_Agents_InvalidChain(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteAgents(t, tmpDir, map[string]string{
		"broken.md": `---
chain: '{"nodes": [{"agent": "self", "branch": []}]}'
---
`,
	})

	lib := New(loam.NewTypedRepository[AgentMetadata](repo))
	_, err := lib.Agents(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChainParse)
	assert.Contains(t, err.Error(), "broken")
}

func TestLibrary_Agents_DetectsCollisions(t *testing.T) {
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteAgents(t, tmpDir, map[string]string{
		"a.md": "---\nuid: same\n---\nA\n",
		"b.md": "---\nuid: same\n---\nB\n",
	})

	lib := New(loam.NewTypedRepository[AgentMetadata](repo))
	_, err := lib.Agents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
}

func TestLibrary_Import(t *testing.T) {
	ctx := context.Background()
	tmpDir, repo := testutils.SetupTestRepo(t)
	testutils.WriteAgents(t, tmpDir, map[string]string{
		"helper.md": "---\nname: Helper\nmodel: fc-mock-echo-inst\n---\nv1\n",
	})

	s := store.New(memory.NewStore())
	lib := New(loam.NewTypedRepository[AgentMetadata](repo))

	res, err := lib.Import(ctx, s.Agents)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Created: 1}, res)

	testutils.WriteAgents(t, tmpDir, map[string]string{
		"helper.md": "---\nname: Helper\nmodel: fc-mock-echo-inst\n---\nv2\n",
	})

	res, err = lib.Import(ctx, s.Agents)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Updated: 1}, res)

	a, err := s.Agents.GetByUID(ctx, "helper")
	require.NoError(t, err)
	assert.Equal(t, "v2", a.Inst)

	all, err := s.Agents.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTrimExtension(t *testing.T) {
	assert.Equal(t, "agents/helper", trimExtension("agents/helper.md"))
	assert.Equal(t, "helper", trimExtension("helper"))
}

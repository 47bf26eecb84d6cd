package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/authz-engine/pdp-core/pkg/types"
)

func TestParseDocument_Policy(t *testing.T) {
	doc, err := ParseDocument([]byte(documentsPolicy))
	require.NoError(t, err)
	require.NotNil(t, doc.Policy)
	assert.Nil(t, doc.PolicySet)

	p := doc.Policy
	assert.Equal(t, "documents", p.Name)
	assert.Equal(t, types.AlgorithmFirstApplicable, p.Algorithm)
	require.Len(t, p.Target, 1)
	assert.Equal(t, "document", p.Target[0]["resource"])

	require.Len(t, p.Rules, 2)
	assert.Equal(t, types.Permit, p.Rules[0].Effect)
	assert.Equal(t, types.Deny, p.Rules[1].Effect)
	require.Len(t, p.Rules[0].Obligations, 1)
	assert.Equal(t, types.Action{On: types.Permit, ID: "audit", Params: map[string]string{"level": "info"}}, p.Rules[0].Obligations[0])
}

func TestParseDocument_PolicySet(t *testing.T) {
	doc, err := ParseDocument([]byte(adminSet))
	require.NoError(t, err)
	require.NotNil(t, doc.PolicySet)
	assert.Equal(t, "admin-override", doc.Name())

	require.Len(t, doc.PolicySet.Children, 1)
	child := doc.PolicySet.Children[0]
	require.NotNil(t, child.Policy)
	assert.Equal(t, "request.mfa == true", child.Policy.Rules[0].EffectExpression)
}

func TestParseDocument_JSONAndKind(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"kind": "PolicySet", "name": "empty", "algorithm": "deny-unless-permit"}`))
	require.NoError(t, err)
	require.NotNil(t, doc.PolicySet)
	assert.Equal(t, "empty", doc.Name())

	_, err = ParseDocument([]byte(`{"kind": "Role", "name": "x"}`))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = ParseDocument([]byte("name: [unterminated"))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = ParseDocument([]byte("name: p\nrules:\n  - name: r\n    effect: maybe\n"))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestLoader_LoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01-documents.yaml", documentsPolicy)
	writeFile(t, dir, "02-admin.yml", adminSet)
	writeFile(t, dir, "03-broken.yaml", "name: broken\nalgorithm: most-specific\nrules: []\n")
	writeFile(t, dir, "README.md", "not a policy")

	core, logs := observer.New(zapcore.WarnLevel)
	loader := NewLoader(zap.New(core), NewValidator(newCEL(t)))

	docs, err := loader.LoadFromDirectory(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "documents", docs[0].Name())
	assert.Equal(t, "admin-override", docs[1].Name())

	assert.Equal(t, 1, logs.FilterMessage("Failed to load policy file").Len())
}

func TestLoader_MissingDirectory(t *testing.T) {
	loader := NewLoader(nil, nil)
	_, err := loader.LoadFromDirectory("/definitely/not/here")
	assert.Error(t, err)
}

func TestLoader_LoadFromFileValidates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad-cel.yaml", `
name: bad
algorithm: deny-overrides
rules:
  - name: r
    condition: request.level +
`)

	_, err := NewLoader(nil, NewValidator(newCEL(t))).LoadFromFile(path)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	// without a validator the document is only parsed
	doc, err := NewLoader(nil, nil).LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bad", doc.Name())
}

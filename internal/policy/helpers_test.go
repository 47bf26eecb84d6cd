package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authz-engine/pdp-core/internal/cel"
)

const documentsPolicy = `
name: documents
algorithm: first-applicable
target:
  - resource: document
rules:
  - name: owner-reads
    target:
      - action: read
    condition: request.owner == request.subject
    effect: permit
    obligations:
      - on: permit
        id: audit
        params:
          level: info
  - name: everyone-else
    effect: deny
    advice:
      - on: deny
        id: explain
`

const adminSet = `
name: admin-override
algorithm: permit-overrides
children:
  - policy:
      name: admins
      algorithm: deny-overrides
      target:
        - role: admin
      rules:
        - name: allow-admins
          effectExpression: request.mfa == true
`

func newCEL(t *testing.T) *cel.Engine {
	t.Helper()
	e, err := cel.NewEngine()
	require.NoError(t, err)
	return e
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

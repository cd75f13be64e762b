package faxserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadFaxJob(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "job.json", `{
		"number": "+15550100",
		"files": ["/var/spool/fax/doc.pdf"],
		"ident": "ACME",
		"notify_to": "ops@example.com"
	}`)
	job, err := ReadFaxJob(path)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.UUID)
	assert.Equal(t, "+15550100", job.CalleeNumber)
	assert.Equal(t, "ACME", job.Identifier)
	assert.True(t, job.UseECM, "ECM stays on unless the job disables it")
	assert.False(t, job.Ts.IsZero())

	id := uuid.New()
	path = writeFile(t, dir, "poll.json", `{"uuid": "`+id.String()+`", "number": "5550100", "poll": true}`)
	job, err = ReadFaxJob(path)
	require.NoError(t, err)
	assert.Equal(t, id, job.UUID)
	assert.True(t, job.Poll)
}

func TestReadFaxJobInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"syntax.json":  `{"number":`,
		"nonum.json":   `{"files": ["a.g3"]}`,
		"nofiles.json": `{"number": "5550100"}`,
	} {
		_, err := ReadFaxJob(writeFile(t, dir, name, content))
		assert.Error(t, err, name)
	}
	_, err := ReadFaxJob(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

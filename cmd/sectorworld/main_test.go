package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
)

const testSectors = `[
	{"ID": "jita", "Name": "Jita", "Bodies": [{"Name": "Jita Star", "Kind": "star", "Radius": 300}]},
	{"ID": "amarr", "Name": "Amarr", "Bodies": []}
]`

func run(t *testing.T, args ...string) string {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	assert.Equal(t, nil, cmd.Execute())
	return out.String()
}

func TestSectorsImportAndList(t *testing.T) {
	dir := t.TempDir()
	ini := filepath.Join(dir, "sectorworld.ini")
	assert.Equal(t, nil, os.WriteFile(ini, []byte(
		"[server]\nhome_sector = jita\n[storage]\ntype = sqlite\nurl = "+filepath.Join(dir, "kv.db")+"\n"), 0644))
	file := filepath.Join(dir, "sectors.json")
	assert.Equal(t, nil, os.WriteFile(file, []byte(testSectors), 0644))

	out := run(t, "-c", ini, "sectors", "import", file)
	assert.Equal(t, "imported 2 sectors\n", out)

	out = run(t, "-c", ini, "sectors", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, 3, len(lines))
	assert.T(t, strings.HasPrefix(lines[1], "amarr"), lines[1])
	assert.T(t, strings.HasPrefix(lines[2], "jita"), lines[2])
	assert.T(t, strings.HasSuffix(lines[2], "1"), lines[2])
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()
	ini := filepath.Join(dir, "bad.ini")
	assert.Equal(t, nil, os.WriteFile(ini, []byte("[server]\nport = -1\n"), 0644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"-c", ini, "sectors", "list"})
	assert.NotEqual(t, nil, cmd.Execute())
}

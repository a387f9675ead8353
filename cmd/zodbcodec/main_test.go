package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluedynamics/zodb-json-codec"
)

func TestToJSONCmdDecodesPickle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, codec.NewEncoder(&buf).Encode(codec.Tuple{int64(1), int64(2), int64(3)}))

	dir := t.TempDir()
	in := filepath.Join(dir, "in.pickle")
	out := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(in, buf.Bytes(), 0o644))

	cmd := newToJSONCmd()
	cmd.SetArgs([]string{"--out", out, in})
	require.NoError(t, cmd.Execute())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "{\"@t\":[1,2,3]}\n", string(got))
}

func TestToJSONCmdRecordFlag(t *testing.T) {
	var buf bytes.Buffer
	state := codec.NewDict()
	state.Set("title", "Hello")
	require.NoError(t, codec.NewEncoder(&buf).Encode(codec.Tuple{"myapp", "Doc"}))
	require.NoError(t, codec.NewEncoder(&buf).Encode(state))

	dir := t.TempDir()
	in := filepath.Join(dir, "in.record")
	out := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(in, buf.Bytes(), 0o644))

	cmd := newToJSONCmd()
	cmd.SetArgs([]string{"--record", "--out", out, in})
	require.NoError(t, cmd.Execute())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(got), `"@cls"`)
	require.Contains(t, string(got), `"Hello"`)
}

func TestToPickleCmdEncodesJSON(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.pickle")
	require.NoError(t, os.WriteFile(in, []byte(`{"@t":[1,2,3]}`), 0o644))

	cmd := newToPickleCmd()
	cmd.SetArgs([]string{"--out", out, in})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	got, err := codec.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)
	require.Equal(t, codec.Tuple{int64(1), int64(2), int64(3)}, got)
}

func TestToPickleCmdRecordFlagRejectsNonRecord(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"@t":[1,2,3]}`), 0o644))

	cmd := newToPickleCmd()
	cmd.SetArgs([]string{"--record", "--out", filepath.Join(dir, "out.pickle"), in})
	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "--record input must be")
}

func TestReadInputFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	data, err := readInput([]string{path})
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestReadInputMissingFile(t *testing.T) {
	_, err := readInput([]string{filepath.Join(t.TempDir(), "missing.bin")})
	require.Error(t, err)
	require.ErrorIs(t, err, errReadInput)
}

func TestWriteOutputToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	require.NoError(t, writeOutput(path, []byte("payload")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestWriteOutputUnwritableDir(t *testing.T) {
	err := writeOutput(filepath.Join(t.TempDir(), "nosuch", "out.bin"), []byte("x"))
	require.Error(t, err)
	require.ErrorIs(t, err, errWriteOutput)
}

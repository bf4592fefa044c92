package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AddListFindDelete(t *testing.T) {
	catSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"name": "Яблоко", "bgu": "0.4,0.4,9.8", "kcal": "47"},
			{"name": "Пирог яблочный", "bgu": "3,9,40", "kcal": "250"}
		]`))
	}))
	defer catSrv.Close()

	dir := t.TempDir()
	exec := func(args ...string) (string, error) {
		var out, errOut bytes.Buffer
		full := append([]string{"-data", dir, "-catalog", catSrv.URL}, args...)
		err := run(context.Background(), full, &out, &errOut)
		return out.String(), err
	}

	out, err := exec("search", "-q", "ябло")
	require.NoError(t, err)
	assert.Regexp(t, `1\s+Яблоко`, out)
	assert.Regexp(t, `2\s+Пирог яблочный`, out)

	out, err = exec("add", "-q", "ябло", "-weight", "150")
	require.NoError(t, err)
	assert.Contains(t, out, "saved #1 Яблоко: 150 g, 70.5 kcal")

	out, err = exec("add", "-q", "ябло", "-pick", "2", "-weight", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "saved #2 Пирог яблочный")

	out, err = exec("list")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 320.5 kcal")

	out, err = exec("find", "-q", "пирог")
	require.NoError(t, err)
	assert.Contains(t, out, "Пирог яблочный")
	assert.NotContains(t, out, "Яблоко ")

	_, err = exec("delete", "-id", "2")
	require.NoError(t, err)
	out, err = exec("list")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 70.5 kcal")
}

func TestRun_Errors(t *testing.T) {
	catSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer catSrv.Close()

	dir := t.TempDir()
	try := func(args ...string) error {
		full := append([]string{"-data", dir, "-catalog", catSrv.URL}, args...)
		return run(context.Background(), full, &bytes.Buffer{}, &bytes.Buffer{})
	}

	assert.Error(t, try())
	assert.Error(t, try("bogus"))
	assert.Error(t, try("add", "-q", "x"))
	assert.ErrorContains(t, try("add", "-q", "x", "-weight", "10"), "0 matches")
	assert.Error(t, try("delete"))
}

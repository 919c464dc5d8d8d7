package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestDiagnoseCommand(t *testing.T) {
	var gotPath, gotToken string
	crmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		w.Write([]byte(`{"pong":true}`))
	}))
	defer crmServer.Close()

	t.Setenv("PRIME_HILL_API_URL", crmServer.URL)
	t.Setenv("PRIME_HILL_API_KEY", "secret")

	out, err := runCLI(t, "diagnose", "ping")
	require.NoError(t, err)

	assert.Equal(t, "/ping", gotPath)
	assert.Equal(t, "secret", gotToken)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["ok"])
}

func TestDiagnoseCommandUnknownAction(t *testing.T) {
	_, err := runCLI(t, "diagnose", "drop")
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	gatewayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"errorCode":"0",
			"orderNumber":"SG-0123456789ab",
			"orderStatus":2,
			"actionCode":0,
			"amount":150000,
			"merchantOrderParams":[{"name":"jsonParams","value":"{\"recipientName\":\"Иван Петров\",\"nominal\":1500}"}]
		}`))
	}))
	defer gatewayServer.Close()

	t.Setenv("ALFA_API_URL", gatewayServer.URL)
	t.Setenv("ALFA_MERCHANT_TOKEN", "tok")

	out, err := runCLI(t, "status", "ord-1")
	require.NoError(t, err)

	var report orderReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Paid)
	assert.Equal(t, "paid", report.StatusText)
	assert.Equal(t, "Иван Петров", report.Request.RecipientName)
	assert.EqualValues(t, 1500, report.Request.Nominal)
}

func TestStatusCommandRequiresOrderID(t *testing.T) {
	_, err := runCLI(t, "status")
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/lendscan/service/ledger"
	"github.com/brojonat/lendscan/service/reserves"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"lendscan"}, args...))
	return out.String(), err
}

func sampleReport() *ledger.Report {
	l := ledger.New()
	l.Deposits["SOL"] = 350_000_000_000
	l.Borrows["USDC"] = 3
	l.Deposits["MYST"] = 42
	l.Obligations = 2
	l.Unresolved = 3
	l.UnresolvedReserves = map[string]int{"ZzzReserve": 1, "AaaReserve": 2}
	return ledger.NewReport("4UpD2fh7xH3VP9QQaXtsS1YY3bxzWhtfpks7FatyKvdY", l, reserves.DefaultTable())
}

func TestReservesList(t *testing.T) {
	out, err := runApp(t, "reserves", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "SYMBOL")
	assert.Contains(t, out, "8PbodeaosQP19SjYFx855UMqWxH2HynZLdBXmsrbac36")
	assert.Contains(t, out, "USDC")
}

func TestReservesList_JSONFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reserves.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[reserve]]
address  = "8PbodeaosQP19SjYFx855UMqWxH2HynZLdBXmsrbac36"
symbol   = "SOL"
decimals = 9
`), 0o600))

	out, err := runApp(t, "--reserve-table", path, "--json", "reserves", "list")
	require.NoError(t, err)

	var assets []reserves.Asset
	require.NoError(t, json.Unmarshal([]byte(out), &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, "SOL", assets[0].Symbol)
	assert.Equal(t, uint8(9), assets[0].Decimals)
}

func TestReservesList_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reserves.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[[reserve]]
address = "8PbodeaosQP19SjYFx855UMqWxH2HynZLdBXmsrbac36"
symbol = "sol"
decimals = 9
`), 0o600))

	_, err := runApp(t, "--reserve-table", path, "reserves", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid symbol")
}

func TestScan_InvalidMarket(t *testing.T) {
	_, err := runApp(t, "--market", "not-a-key", "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --market")
}

func TestInspectReserve_RequiresAddress(t *testing.T) {
	_, err := runApp(t, "inspect", "reserve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve address is required")
}

func TestPrintJQ(t *testing.T) {
	var out bytes.Buffer
	err := printJQ(&out, `.assets[] | select(.symbol == "SOL") | .deposited_ui`, sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "\"350\"\n", out.String())

	out.Reset()
	require.NoError(t, printJQ(&out, `.assets | map(.symbol)`, sampleReport()))
	assert.Equal(t, "[\"MYST\",\"SOL\",\"USDC\"]\n", out.String())
}

func TestPrintJQ_Errors(t *testing.T) {
	var out bytes.Buffer
	err := printJQ(&out, `.assets[`, sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")

	err = printJQ(&out, `.market | tonumber`, sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq")
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, sampleReport(), nil)
	text := out.String()

	assert.Contains(t, text, "Obligations:     2")
	assert.Contains(t, text, "Unresolved:      3")
	assert.Contains(t, text, "350")
	assert.Contains(t, text, "42 (raw)", "assets without decimals print raw units")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("AaaReserve")), bytes.Index(out.Bytes(), []byte("ZzzReserve")))
}

func TestPrintReport_Empty(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, ledger.NewReport("m", ledger.New(), nil), nil)
	assert.Contains(t, out.String(), "No positions found")
}

func TestHealthCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
}

func TestClientLedgerCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ledger", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		json.NewEncoder(w).Encode(sampleReport())
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "ledger", "--refresh", "--jq", ".obligations")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestClientScheduleCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/schedules/4UpD2fh7xH3VP9QQaXtsS1YY3bxzWhtfpks7FatyKvdY", r.URL.Path)
		w.Write([]byte(`{"market":"4UpD2fh7xH3VP9QQaXtsS1YY3bxzWhtfpks7FatyKvdY","interval":"30m0s","publish":true}`))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "schedule", "--interval", "30m")
	require.NoError(t, err)
	assert.Contains(t, out, "scheduled every 30m0s")
}

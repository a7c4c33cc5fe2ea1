//go:build load
// +build load

package load

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

// The load suite targets a running server. Start one with a seeded user
// and export LOAD_TOKEN with one of its access tokens:
//
//	go test -tags load ./tests/load/
const (
	baseURL        = "http://localhost:8080"
	targetRPS      = 50
	duration       = 30 * time.Second
	maxLatencyP99  = 300 * time.Millisecond
	minSuccessRate = 0.999
)

func loadToken(t *testing.T) string {
	t.Helper()
	token := os.Getenv("LOAD_TOKEN")
	if token == "" {
		t.Skip("LOAD_TOKEN not set, skipping load test")
	}
	return token
}

func requireServer(t *testing.T) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		t.Fatalf("server is not running at %s: %v", baseURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health check failed with status %d", resp.StatusCode)
	}
}

// setupProject creates a throwaway project for the attack to write into.
func setupProject(t *testing.T, token string) string {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"name": fmt.Sprintf("load-%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/projects", bytes.NewBuffer(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var project struct {
		Id string `json:"project_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&project))
	return project.Id
}

func attack(t *testing.T, name string, target vegeta.Target) *vegeta.Metrics {
	t.Helper()

	rate := vegeta.Rate{Freq: targetRPS, Per: time.Second}
	attacker := vegeta.NewAttacker(vegeta.Timeout(10 * time.Second))
	targeter := vegeta.NewStaticTargeter(target)

	var m vegeta.Metrics
	for res := range attacker.Attack(targeter, rate, duration, name) {
		m.Add(res)
	}
	m.Close()

	t.Logf("%s: requests=%d success=%.4f%% rps=%.2f p50=%v p95=%v p99=%v",
		name, m.Requests, m.Success*100, m.Rate,
		m.Latencies.P50, m.Latencies.P95, m.Latencies.P99)
	return &m
}

func validate(t *testing.T, m *vegeta.Metrics) {
	t.Helper()
	require.GreaterOrEqual(t, m.Success, minSuccessRate,
		"success rate %.4f%% below required %.4f%%", m.Success*100, minSuccessRate*100)
	require.LessOrEqual(t, m.Latencies.P99, maxLatencyP99,
		"p99 latency %v exceeds %v", m.Latencies.P99, maxLatencyP99)
}

// Issue creation exercises the per-project sequence allocator under
// write contention: every request races for the next number on the
// same project.
func TestLoad_CreateIssue(t *testing.T) {
	requireServer(t)
	token := loadToken(t)
	projectId := setupProject(t, token)

	body, err := json.Marshal(map[string]string{
		"project_id": projectId,
		"title":      "load test issue",
	})
	require.NoError(t, err)

	m := attack(t, "issue-create", vegeta.Target{
		Method: http.MethodPost,
		URL:    baseURL + "/issues",
		Body:   body,
		Header: http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + token},
		},
	})
	validate(t, m)
}

// Project reads hit the permission cache on every request.
func TestLoad_GetProject(t *testing.T) {
	requireServer(t)
	token := loadToken(t)
	projectId := setupProject(t, token)

	m := attack(t, "project-get", vegeta.Target{
		Method: http.MethodGet,
		URL:    baseURL + "/projects/" + projectId,
		Header: http.Header{
			"Authorization": []string{"Bearer " + token},
		},
	})
	validate(t, m)
}

// The ref advertisement is what every git fetch starts with.
func TestLoad_GitInfoRefs(t *testing.T) {
	requireServer(t)
	token := loadToken(t)

	repoId := os.Getenv("LOAD_REPO_ID")
	if repoId == "" {
		t.Skip("LOAD_REPO_ID not set, skipping git load test")
	}

	m := attack(t, "git-info-refs", vegeta.Target{
		Method: http.MethodGet,
		URL:    baseURL + "/repo/" + repoId + "/info/refs?service=git-upload-pack",
		Header: http.Header{
			"Authorization": []string{"Bearer " + token},
		},
	})
	validate(t, m)
}

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8081", "API base URL")
	stage := flag.String("stage", "", "Run a single stage (discover, analyze, sync); empty runs all")
	wait := flag.Bool("wait", true, "Poll the job until it finishes")
	flag.Parse()

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}
	base := strings.TrimRight(*baseURL, "/")
	client := &http.Client{Timeout: 30 * time.Second}

	token, err := fetchToken(client, base, adminSecret)
	if err != nil {
		fmt.Printf("Error getting token: %v\n", err)
		os.Exit(1)
	}

	url := base + "/api/v1/runs"
	if *stage != "" {
		url += "/" + *stage
	}
	var started struct {
		Message string `json:"message"`
		JobID   string `json:"job_id"`
		Poll    string `json:"poll"`
		Error   string `json:"error"`
	}
	status, err := call(client, http.MethodPost, url, token, nil, &started)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Response Status: %d\n", status)
	if status != http.StatusAccepted {
		fmt.Printf("Error: %s (job %s)\n", started.Error, started.JobID)
		os.Exit(1)
	}
	fmt.Printf("%s, job %s\n", started.Message, started.JobID)
	if !*wait {
		return
	}

	for {
		time.Sleep(3 * time.Second)
		var job map[string]any
		if _, err := call(client, http.MethodGet, base+started.Poll, token, nil, &job); err != nil {
			fmt.Printf("Error polling job: %v\n", err)
			os.Exit(1)
		}
		if job["status"] == "running" {
			continue
		}
		out, _ := json.MarshalIndent(job, "", "  ")
		fmt.Println(string(out))
		if job["status"] != "completed" {
			os.Exit(1)
		}
		return
	}
}

func fetchToken(client *http.Client, base, secret string) (string, error) {
	body, _ := json.Marshal(map[string]string{"secret": secret, "subject": "trigger-cli"})
	var resp struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	status, err := call(client, http.MethodPost, base+"/api/v1/auth/token", "", body, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("http %d: %s", status, resp.Error)
	}
	return resp.Token, nil
}

func call(client *http.Client, method, url, token string, body []byte, out any) (int, error) {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode failed: %w", err)
	}
	return resp.StatusCode, nil
}

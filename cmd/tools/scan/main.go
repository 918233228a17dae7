package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

func main() {
	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	baseURL := strings.TrimSpace(os.Getenv("SITESCAN_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	url := baseURL + "/api/v1/scan/trigger"
	req, err := http.NewRequest("POST", url, nil)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("X-Admin-Secret", adminSecret)
	req.Header.Set("Authorization", "Bearer "+adminSecret)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("Response Status: %s\n", resp.Status)
	if resp.StatusCode == http.StatusConflict {
		fmt.Println("A scan is already in progress")
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusAccepted {
		os.Exit(1)
	}
}

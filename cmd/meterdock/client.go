package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// APIClient provides HTTP client functionality to communicate with the
// meterdock daemon
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/installation")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// UploadPlan uploads a test plan file and returns the daemon's response
func (c *APIClient) UploadPlan(path string) (interface{}, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("plan", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := c.client.Post(c.baseURL+"/plans", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusCreated)
}

// ListPlans lists stored test plans
func (c *APIClient) ListPlans() (interface{}, error) {
	resp, err := c.client.Get(c.baseURL + "/plans")
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusOK)
}

// SubmitExecution submits a new execution of the given plan
func (c *APIClient) SubmitExecution(planID string) (interface{}, error) {
	body, err := json.Marshal(map[string]string{"plan_id": planID})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Post(c.baseURL+"/executions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusAccepted)
}

// GetExecution fetches one execution record, or all when id is empty
func (c *APIClient) GetExecution(id string) (interface{}, error) {
	url := c.baseURL + "/executions"
	if id != "" {
		url += "/" + id
	}
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusOK)
}

// GetSummary fetches the aggregate sample statistics for an execution
func (c *APIClient) GetSummary(id string) (interface{}, error) {
	resp, err := c.client.Get(c.baseURL + "/executions/" + id + "/summary")
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusOK)
}

// DownloadReport streams the execution's report zip into w
func (c *APIClient) DownloadReport(id string, w io.Writer) error {
	resp, err := c.client.Get(c.baseURL + "/executions/" + id + "/report")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// InstallationStatus fetches the current installation configuration
func (c *APIClient) InstallationStatus() (interface{}, error) {
	resp, err := c.client.Get(c.baseURL + "/installation")
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusOK)
}

// VerifyInstallation probes the configured installation
func (c *APIClient) VerifyInstallation() (interface{}, error) {
	resp, err := c.client.Get(c.baseURL + "/installation/verify")
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusOK)
}

// InstallArchive uploads a distribution archive for installation
func (c *APIClient) InstallArchive(path string) (interface{}, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("archive", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := c.client.Post(c.baseURL+"/installation", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusOK)
}

// ConfigureInstallation points the daemon at an existing installation dir
func (c *APIClient) ConfigureInstallation(path string) (interface{}, error) {
	body, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Post(c.baseURL+"/installation", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp, http.StatusOK)
}

// ClearInstallation erases the installation configuration
func (c *APIClient) ClearInstallation() error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/installation", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func decodeResponse(resp *http.Response, want int) (interface{}, error) {
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != want {
		return nil, apiError(resp)
	}
	var result interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}

func apiError(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}

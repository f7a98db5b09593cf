package ipc

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"capstan/internal/api"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Capstan.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Capstan.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadCreate submits a new source for download.
func (c *Client) DownloadCreate(source, owner, destination string) (*DownloadCreateResponse, error) {
	var resp DownloadCreateResponse
	req := DownloadCreateRequest{Source: source, Owner: owner, Destination: destination}
	if err := c.client.Call("Capstan.DownloadCreate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadList returns downloads optionally filtered by statuses.
func (c *Client) DownloadList(statuses []string) (*DownloadListResponse, error) {
	var resp DownloadListResponse
	req := DownloadListRequest{Statuses: statuses}
	if err := c.client.Call("Capstan.DownloadList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadDescribe returns details for a single download.
func (c *Client) DownloadDescribe(id int64) (*DownloadDescribeResponse, error) {
	var resp DownloadDescribeResponse
	req := DownloadDescribeRequest{ID: id}
	if err := c.client.Call("Capstan.DownloadDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadPause suspends an active download.
func (c *Client) DownloadPause(id int64) (*DownloadPauseResponse, error) {
	var resp DownloadPauseResponse
	if err := c.client.Call("Capstan.DownloadPause", DownloadPauseRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadResume readmits a paused download.
func (c *Client) DownloadResume(id int64) (*DownloadResumeResponse, error) {
	var resp DownloadResumeResponse
	if err := c.client.Call("Capstan.DownloadResume", DownloadResumeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadCancel removes a download, optionally deleting staged files.
func (c *Client) DownloadCancel(id int64, deleteFiles bool) (*DownloadCancelResponse, error) {
	var resp DownloadCancelResponse
	req := DownloadCancelRequest{ID: id, DeleteFiles: deleteFiles}
	if err := c.client.Call("Capstan.DownloadCancel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadImport queues a manual import for a completed download.
func (c *Client) DownloadImport(id int64) (*DownloadImportResponse, error) {
	var resp DownloadImportResponse
	if err := c.client.Call("Capstan.DownloadImport", DownloadImportRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VolumesStatus samples the monitored volumes.
func (c *Client) VolumesStatus() (*VolumesResponse, error) {
	var resp VolumesResponse
	if err := c.client.Call("Capstan.VolumesStatus", VolumesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cleanup sweeps staging directories by age or liveness.
func (c *Client) Cleanup(req CleanupRequest) (*CleanupResponse, error) {
	var resp CleanupResponse
	if err := c.client.Call("Capstan.Cleanup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryList returns archived outcomes, newest first.
func (c *Client) HistoryList(limit int, outcomes []string) (*HistoryListResponse, error) {
	var resp HistoryListResponse
	req := HistoryListRequest{Limit: limit, Outcomes: outcomes}
	if err := c.client.Call("Capstan.HistoryList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SnapshotHealth retrieves record snapshot diagnostics.
func (c *Client) SnapshotHealth() (*SnapshotHealthResponse, error) {
	var resp SnapshotHealthResponse
	if err := c.client.Call("Capstan.SnapshotHealth", SnapshotHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryHealth retrieves archive database diagnostics.
func (c *Client) HistoryHealth() (*HistoryHealthResponse, error) {
	var resp HistoryHealthResponse
	if err := c.client.Call("Capstan.HistoryHealth", HistoryHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Capstan.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NotificationTest triggers a notification test via the daemon.
func (c *Client) NotificationTest() (*NotificationTestResponse, error) {
	var resp NotificationTestResponse
	if err := c.client.Call("Capstan.NotificationTest", NotificationTestRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Describe adapts DownloadDescribe to the batch action contract: a missing
// download reports (nil, nil) instead of an RPC error.
func (c *Client) Describe(_ context.Context, id int64) (*api.Download, error) {
	resp, err := c.DownloadDescribe(id)
	if err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	download := resp.Download
	return &download, nil
}

// Cancel adapts DownloadCancel to the batch action contract.
func (c *Client) Cancel(_ context.Context, id int64, deleteFiles bool) error {
	_, err := c.DownloadCancel(id, deleteFiles)
	return err
}

// Import adapts DownloadImport to the batch action contract.
func (c *Client) Import(_ context.Context, id int64) error {
	_, err := c.DownloadImport(id)
	return err
}

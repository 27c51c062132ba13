package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
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

// Submit registers a remote video for processing.
func (c *Client) Submit(url string) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Lectern.Submit", SubmitRequest{URL: url}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddVideo registers a local file for processing.
func (c *Client) AddVideo(path, title string) (*AddVideoResponse, error) {
	var resp AddVideoResponse
	if err := c.client.Call("Lectern.AddVideo", AddVideoRequest{Path: path, Title: title}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resubmit reruns the full pipeline for a video.
func (c *Client) Resubmit(videoID int64) (*ResubmitResponse, error) {
	var resp ResubmitResponse
	if err := c.client.Call("Lectern.Resubmit", ResubmitRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerAnalysis reruns analysis for a video.
func (c *Client) TriggerAnalysis(videoID int64) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.client.Call("Lectern.TriggerAnalysis", TriggerRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerSegmentation recuts clips for a video.
func (c *Client) TriggerSegmentation(videoID int64) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.client.Call("Lectern.TriggerSegmentation", TriggerRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunStatus returns a run with its tasks.
func (c *Client) RunStatus(runID string) (*RunStatusResponse, error) {
	var resp RunStatusResponse
	if err := c.client.Call("Lectern.RunStatus", RunStatusRequest{RunID: runID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoList returns videos optionally filtered by state names.
func (c *Client) VideoList(states []string) (*VideoListResponse, error) {
	var resp VideoListResponse
	if err := c.client.Call("Lectern.VideoList", VideoListRequest{States: states}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoDescribe returns a video with its artifacts.
func (c *Client) VideoDescribe(videoID int64) (*VideoDescribeResponse, error) {
	var resp VideoDescribeResponse
	if err := c.client.Call("Lectern.VideoDescribe", VideoDescribeRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoRemove deletes a video record.
func (c *Client) VideoRemove(videoID int64) (*VideoRemoveResponse, error) {
	var resp VideoRemoveResponse
	if err := c.client.Call("Lectern.VideoRemove", VideoRemoveRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoLogs returns the audit trail for a video.
func (c *Client) VideoLogs(videoID int64, limit int) (*VideoLogsResponse, error) {
	var resp VideoLogsResponse
	if err := c.client.Call("Lectern.VideoLogs", VideoLogsRequest{VideoID: videoID, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Lectern.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Lectern.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clean runs one cleanup sweep.
func (c *Client) Clean() (*CleanResponse, error) {
	var resp CleanResponse
	if err := c.client.Call("Lectern.Clean", CleanRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns daemon log lines.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Lectern.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Lectern.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

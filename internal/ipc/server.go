package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"lectern/internal/daemon"
	"lectern/internal/logging"
	"lectern/internal/logs"
	"lectern/internal/records"
	"lectern/internal/tasks"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName("Lectern", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually before restarting"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func videoSummary(video *records.Video) VideoSummary {
	if video == nil {
		return VideoSummary{}
	}
	return VideoSummary{
		ID:              video.ID,
		Title:           video.Title,
		SourceURL:       video.SourceURL,
		SourceKind:      string(video.SourceKind),
		State:           string(video.State),
		ThumbnailState:  string(video.ThumbnailState),
		ThumbnailPath:   video.ThumbnailPath,
		DurationSeconds: video.DurationSeconds,
		SizeMB:          video.SizeMB,
		ErrorMessage:    video.ErrorMessage,
		CreatedAt:       video.CreatedAt,
		UpdatedAt:       video.UpdatedAt,
	}
}

func runView(run *records.Run) RunView {
	if run == nil {
		return RunView{}
	}
	return RunView{
		ID:           run.ID,
		VideoID:      run.VideoID,
		Status:       string(run.Status),
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt,
		FinishedAt:   run.FinishedAt,
	}
}

func taskViews(rows []*tasks.Task) []TaskView {
	views := make([]TaskView, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		views = append(views, TaskView{
			ID:        row.ID,
			Stage:     row.Stage,
			Attempt:   row.Attempt,
			Status:    string(row.Status),
			RunAfter:  row.RunAfter,
			LastError: row.LastError,
		})
	}
	return views
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	video, run, err := s.daemon.Submit(s.ctx, req.URL)
	if err != nil {
		return err
	}
	resp.Video = videoSummary(video)
	resp.RunID = run.ID
	s.logger.Info("video submitted via ipc",
		logging.Int64(logging.FieldVideoID, video.ID),
		logging.String(logging.FieldRunID, run.ID))
	return nil
}

func (s *service) AddVideo(req AddVideoRequest, resp *AddVideoResponse) error {
	video, run, err := s.daemon.AddLocal(s.ctx, req.Path, req.Title)
	if err != nil {
		return err
	}
	resp.Video = videoSummary(video)
	resp.RunID = run.ID
	s.logger.Info("local video added via ipc",
		logging.Int64(logging.FieldVideoID, video.ID),
		logging.String(logging.FieldRunID, run.ID))
	return nil
}

func (s *service) Resubmit(req ResubmitRequest, resp *ResubmitResponse) error {
	run, err := s.daemon.Resubmit(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	resp.RunID = run.ID
	return nil
}

func (s *service) TriggerAnalysis(req TriggerRequest, resp *TriggerResponse) error {
	run, err := s.daemon.TriggerAnalysis(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	resp.RunID = run.ID
	return nil
}

func (s *service) TriggerSegmentation(req TriggerRequest, resp *TriggerResponse) error {
	run, err := s.daemon.TriggerSegmentation(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	resp.RunID = run.ID
	return nil
}

func (s *service) RunStatus(req RunStatusRequest, resp *RunStatusResponse) error {
	run, rows, err := s.daemon.RunStatus(s.ctx, req.RunID)
	if err != nil {
		return err
	}
	resp.Run = runView(run)
	resp.Tasks = taskViews(rows)
	return nil
}

func (s *service) VideoList(req VideoListRequest, resp *VideoListResponse) error {
	states := make([]records.State, 0, len(req.States))
	for _, name := range req.States {
		parsed, ok := records.ParseState(name)
		if !ok {
			continue
		}
		states = append(states, parsed)
	}
	videos, err := s.daemon.ListVideos(s.ctx, states)
	if err != nil {
		return err
	}
	resp.Videos = make([]VideoSummary, 0, len(videos))
	for _, video := range videos {
		resp.Videos = append(resp.Videos, videoSummary(video))
	}
	return nil
}

func (s *service) VideoDescribe(req VideoDescribeRequest, resp *VideoDescribeResponse) error {
	detail, err := s.daemon.DescribeVideo(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	resp.Video = videoSummary(detail.Video)
	if detail.Transcript != nil {
		resp.Transcript = detail.Transcript.Content
	}
	if detail.Summary != nil {
		resp.Summary = &SummaryView{
			Body:            detail.Summary.Body,
			ThemesJSON:      detail.Summary.ThemesJSON,
			ConclusionsJSON: detail.Summary.ConclusionsJSON,
			KeyPointsJSON:   detail.Summary.KeyPointsJSON,
			WordCount:       detail.Summary.WordCount,
			Model:           detail.Summary.Model,
		}
	}
	resp.Segments = make([]SegmentView, 0, len(detail.Segments))
	for _, segment := range detail.Segments {
		resp.Segments = append(resp.Segments, SegmentView{
			Position:      segment.Position,
			Title:         segment.Title,
			Description:   segment.Description,
			StartSeconds:  segment.StartSeconds,
			EndSeconds:    segment.EndSeconds,
			Relevance:     segment.Relevance,
			Category:      segment.Category,
			ClipPath:      segment.ClipPath,
			ThumbnailPath: segment.ThumbnailPath,
		})
	}
	return nil
}

func (s *service) VideoRemove(req VideoRemoveRequest, resp *VideoRemoveResponse) error {
	removed, err := s.daemon.RemoveVideo(s.ctx, req.VideoID)
	if err != nil {
		return err
	}
	resp.Removed = removed
	if removed {
		s.logger.Info("video removed via ipc", logging.Int64(logging.FieldVideoID, req.VideoID))
	}
	return nil
}

func (s *service) VideoLogs(req VideoLogsRequest, resp *VideoLogsResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.daemon.RecentLogs(s.ctx, req.VideoID, limit)
	if err != nil {
		return err
	}
	resp.Entries = make([]StageLogView, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, StageLogView{
			Stage:       entry.Stage,
			Outcome:     string(entry.Outcome),
			Message:     entry.Message,
			ErrorDetail: entry.ErrorDetail,
			DurationMS:  entry.DurationMS,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DBPath = status.DBPath
	resp.LockPath = status.LockPath
	resp.VideoCounts = make(map[string]int, len(status.VideoCounts))
	for state, count := range status.VideoCounts {
		resp.VideoCounts[string(state)] = count
	}
	resp.TaskCounts = make(map[string]int, len(status.TaskCounts))
	for taskStatus, count := range status.TaskCounts {
		resp.TaskCounts[string(taskStatus)] = count
	}
	resp.DiskFreeMB = status.DiskFreeMB
	resp.StageHealth = make([]StageHealth, 0, len(status.StageHealth))
	for _, health := range status.StageHealth {
		resp.StageHealth = append(resp.StageHealth, StageHealth{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Clean(_ CleanRequest, resp *CleanResponse) error {
	result, err := s.daemon.Clean(s.ctx)
	if err != nil {
		return err
	}
	resp.DeletedFiles = result.DeletedFiles
	resp.FreedMB = result.FreedMB
	resp.DiskFreeMB = result.DiskFreeMB
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.TestNotification(s.ctx); err != nil {
		resp.Sent = false
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "test notification sent"
	return nil
}

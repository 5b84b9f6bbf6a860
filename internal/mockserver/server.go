// Package mockserver is an in-process stand-in for the audit backend. It
// serves the REST API and the live websocket stream, and can simulate audit
// runs so the dashboard has something to show without a real backend.
package mockserver

import (
	"archive/zip"
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/models"
)

// Realm is sent in WWW-Authenticate challenges
const Realm = "Code Audit System"

// Options configure a Server
type Options struct {
	// Username and Password enable basic auth when either is set
	Username string
	Password string
	// Tick is the pause between simulated events
	Tick   time.Duration
	Logger *zap.Logger
}

// Server is the mock backend
type Server struct {
	router   *gin.Engine
	store    *store
	hub      *hub
	logger   *zap.Logger
	tick     time.Duration
	opts     Options
	upgrader websocket.Upgrader
}

// New creates a server with no projects
func New(opts Options) *Server {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("mockserver")

	s := &Server{
		store:  newStore(),
		hub:    newHub(logger),
		logger: logger,
		tick:   opts.Tick,
		opts:   opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	if opts.Username != "" || opts.Password != "" {
		router.Use(s.basicAuth())
	}

	router.GET("/ws", s.handleWS)
	router.GET("/projects", s.listProjects)
	router.POST("/projects/create", s.createProject)
	router.GET("/projects/:name", s.getProject)
	router.GET("/projects/:name/vulns", s.getVulns)
	router.GET("/projects/:name/containers", s.getContainers)
	router.GET("/projects/:name/events", s.getEvents)
	router.GET("/projects/:name/reports", s.getReports)
	router.GET("/projects/:name/envinfo", s.getEnvInfo)
	router.GET("/projects/:name/start", s.startProject)
	router.GET("/projects/:name/cancel", s.cancelProject)
	router.GET("/projects/:name/del", s.deleteProject)
	router.GET("/projects/:name/reports/download/:id", s.downloadReport)
	router.GET("/projects/:name/reports/downloadAll", s.downloadAllReports)

	s.router = router
	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve serves on l until ctx is cancelled
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	s.logger.Info("mock backend listening", zap.String("addr", l.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ListenAndServe listens on addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Close stops every simulation and disconnects websocket clients
func (s *Server) Close() {
	for _, name := range s.store.names() {
		if stop := s.store.finish(name); stop != nil {
			stop()
		}
	}
	s.hub.close()
}

// Seed installs a project as-is
func (s *Server) Seed(d models.ProjectDetail) {
	s.store.seed(d)
}

// Subscribers returns the number of connected websocket clients
func (s *Server) Subscribers() int {
	return s.hub.count()
}

// Publish applies e to project and sends it to subscribed clients
func (s *Server) Publish(project string, e envelope.Envelope) {
	data, err := envelope.Encode(e)
	if err != nil {
		s.logger.Error("encode envelope", zap.Error(err))
		return
	}
	s.store.apply(project, e)
	s.hub.broadcast(project, data)
}

// Start marks project running and launches a simulated audit
func (s *Server) Start(project string, startType models.StartType) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	stop := func() {
		cancel()
		<-done
	}
	if err := s.store.begin(project, stop); err != nil {
		cancel()
		return err
	}

	s.logger.Info("simulated audit started", zap.String("project", project), zap.Stringer("type", startType))
	s.Publish(project, envelope.ProjectStatus{Status: models.StatusRunning})
	go s.simulate(ctx, project, startType, done)
	return nil
}

// Cancel stops a running simulation and marks the project cancelled
func (s *Server) Cancel(project string) error {
	if _, ok := s.store.detail(project); !ok {
		return errNotFound(project)
	}
	stop := s.store.finish(project)
	if stop == nil {
		return errors.New("项目未在运行")
	}
	stop()
	s.Publish(project, envelope.EventLog{Line: "审计已取消"})
	s.Publish(project, envelope.ProjectStatus{Status: models.StatusCancelled})
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetHeader("X-Request-ID")))
	}
}

func (s *Server) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if ok &&
			subtle.ConstantTimeCompare([]byte(user), []byte(s.opts.Username)) == 1 &&
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.opts.Password)) == 1 {
			c.Next()
			return
		}
		c.Header("WWW-Authenticate", `Basic realm="`+Realm+`"`)
		fail(c, http.StatusUnauthorized, "未登录")
		c.Abort()
	}
}

func succeed(c *gin.Context, result any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result, "error": nil})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "result": nil, "error": msg})
}

// project loads the :name project or answers 404
func (s *Server) project(c *gin.Context) (models.ProjectDetail, bool) {
	name := c.Param("name")
	d, found := s.store.detail(name)
	if !found {
		fail(c, http.StatusNotFound, errNotFound(name).Error())
	}
	return d, found
}

func (s *Server) listProjects(c *gin.Context) {
	succeed(c, s.store.names())
}

func (s *Server) getProject(c *gin.Context) {
	if d, found := s.project(c); found {
		succeed(c, d)
	}
}

func (s *Server) getVulns(c *gin.Context) {
	if d, found := s.project(c); found {
		succeed(c, d.VulnList)
	}
}

func (s *Server) getContainers(c *gin.Context) {
	if d, found := s.project(c); found {
		succeed(c, d.ContainerList)
	}
}

func (s *Server) getEvents(c *gin.Context) {
	d, found := s.project(c)
	if !found {
		return
	}
	count, err := strconv.Atoi(c.DefaultQuery("count", "50"))
	if err != nil || count <= 0 {
		count = 50
	}
	logs := d.EventLog
	if len(logs) > count {
		logs = logs[len(logs)-count:]
	}
	succeed(c, logs)
}

func (s *Server) getReports(c *gin.Context) {
	if d, found := s.project(c); found {
		succeed(c, d.ReportList)
	}
}

func (s *Server) getEnvInfo(c *gin.Context) {
	if d, found := s.project(c); found {
		succeed(c, d.EnvInfo)
	}
}

func (s *Server) createProject(c *gin.Context) {
	name := c.Query("projectName")
	if name == "" {
		fail(c, http.StatusBadRequest, "缺少项目名称")
		return
	}
	if !models.ValidProjectName(name) {
		fail(c, http.StatusBadRequest, "项目名称只能包含字母、数字、下划线和连字符")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "缺少文件")
		return
	}
	if !models.ValidArchive(fh.Filename) {
		fail(c, http.StatusBadRequest, "不支持的文件类型，仅支持 .zip, .tar.gz, .tgz, .tar 格式")
		return
	}

	if err := s.store.create(name, fh.Filename); err != nil {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	s.logger.Info("project created", zap.String("project", name), zap.String("archive", fh.Filename), zap.Int64("bytes", fh.Size))
	succeed(c, "项目创建成功")
}

func (s *Server) startProject(c *gin.Context) {
	name := c.Param("name")
	startType := models.StartFull
	if c.Query("startType") == "1" {
		startType = models.StartAnalysisOnly
	}
	if _, found := s.project(c); !found {
		return
	}
	if err := s.Start(name, startType); err != nil {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	succeed(c, "项目已启动")
}

func (s *Server) cancelProject(c *gin.Context) {
	if err := s.Cancel(c.Param("name")); err != nil {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	succeed(c, "项目已取消")
}

func (s *Server) deleteProject(c *gin.Context) {
	name := c.Param("name")
	stop, found := s.store.remove(name)
	if !found {
		fail(c, http.StatusNotFound, errNotFound(name).Error())
		return
	}
	if stop != nil {
		stop()
	}
	succeed(c, "项目已删除")
}

func (s *Server) downloadReport(c *gin.Context) {
	title, body, found := s.store.report(c.Param("name"), c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, "报告不存在")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+title+`"`)
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(body))
}

func (s *Server) downloadAllReports(c *gin.Context) {
	d, found := s.project(c)
	if !found {
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+d.ProjectName+`-reports.zip"`)
	c.Header("Content-Type", "application/zip")
	c.Status(http.StatusOK)

	zw := zip.NewWriter(c.Writer)
	for id := range d.ReportList {
		title, body, found := s.store.report(d.ProjectName, id)
		if !found {
			continue
		}
		w, err := zw.Create(title)
		if err != nil {
			s.logger.Warn("zip report", zap.Error(err))
			return
		}
		if _, err := io.WriteString(w, body); err != nil {
			return
		}
	}
	if err := zw.Close(); err != nil {
		s.logger.Warn("zip reports", zap.Error(err))
	}
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	project := c.Query("projectName")
	s.logger.Info("websocket client connected", zap.String("project", project))

	if project != "" {
		ack, err := envelope.Encode(envelope.ProjectName{Name: project})
		if err != nil {
			s.logger.Warn("encode subscription ack", zap.String("project", project), zap.Error(err))
			conn.Close()
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
			conn.Close()
			return
		}
	}

	sub := s.hub.subscribe(project)

	// The client never sends anything; reading only detects that it left.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.unsubscribe(sub)
				return
			}
		}
	}()

	for data := range sub.send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.hub.unsubscribe(sub)
			break
		}
	}
	conn.Close()
	s.logger.Info("websocket client disconnected", zap.String("project", project))
}

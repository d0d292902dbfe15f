package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meterdock/meterdock/internal/execution"
	"github.com/meterdock/meterdock/internal/installer"
	"github.com/meterdock/meterdock/internal/orchestrator"
	mdtls "github.com/meterdock/meterdock/internal/tls"
)

// Router provides embeddable HTTP handlers for the execution pipeline.
// Endpoints:
//
//	POST   {basePath}/plans                   multipart field "plan"
//	GET    {basePath}/plans
//	POST   {basePath}/executions              body: {"plan_id": "..."}
//	GET    {basePath}/executions
//	GET    {basePath}/executions/:id
//	GET    {basePath}/executions/:id/report   zip download
//	GET    {basePath}/executions/:id/summary
//	GET    {basePath}/executions/:id/console
//	GET    {basePath}/installation
//	GET    {basePath}/installation/verify
//	POST   {basePath}/installation            multipart "archive" or {"path": "..."}
//	DELETE {basePath}/installation
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	orc      *orchestrator.Orchestrator
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(orc *orchestrator.Orchestrator, basePath string) *Router {
	return &Router{orc: orc, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/plans", r.handleUploadPlan)
	group.GET("/plans", r.handleListPlans)
	group.POST("/executions", r.handleSubmit)
	group.GET("/executions", r.handleListExecutions)
	group.GET("/executions/:id", r.handleGetExecution)
	group.GET("/executions/:id/report", r.handleReport)
	group.GET("/executions/:id/summary", r.handleSummary)
	group.GET("/executions/:id/console", r.handleConsole)
	group.GET("/installation", r.handleInstallationStatus)
	group.GET("/installation/verify", r.handleInstallationVerify)
	group.POST("/installation", r.handleInstall)
	group.DELETE("/installation", r.handleClearInstallation)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, orc *orchestrator.Orchestrator) (*http.Server, error) {
	server := newServer(addr, basePath, orc)
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// NewTLSServer starts a standalone HTTPS server on addr using this router.
func NewTLSServer(addr, basePath string, tlsCfg mdtls.Config, orc *orchestrator.Orchestrator) (*http.Server, error) {
	tc, err := mdtls.Setup(tlsCfg)
	if err != nil {
		return nil, err
	}
	if tc == nil {
		return nil, errors.New("tls server requested but tls is disabled")
	}
	server := newServer(addr, basePath, orc)
	server.TLSConfig = tc
	// Cert/key come from TLSConfig.GetCertificate.
	go func() { _ = server.ListenAndServeTLS("", "") }()
	return server, nil
}

func newServer(addr, basePath string, orc *orchestrator.Orchestrator) *http.Server {
	r := NewRouter(orc, basePath)
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Distribution archives are large; uploads get a generous window.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type submitReq struct {
	PlanID string `json:"plan_id"`
}

type installReq struct {
	Path string `json:"path"`
}

func (r *Router) handleUploadPlan(c *gin.Context) {
	fh, err := c.FormFile("plan")
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "multipart field 'plan' required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	defer func() { _ = f.Close() }()
	plan, err := r.orc.UploadPlan(f)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, plan)
}

func (r *Router) handleListPlans(c *gin.Context) {
	plans, err := r.orc.ListPlans()
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, plans)
}

func (r *Router) handleSubmit(c *gin.Context) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.PlanID == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "plan_id required"})
		return
	}
	rec, err := r.orc.Submit(req.PlanID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, rec)
}

func (r *Router) handleListExecutions(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orc.List())
}

func (r *Router) handleGetExecution(c *gin.Context) {
	rec, err := r.orc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleReport(c *gin.Context) {
	id := c.Param("id")
	b, err := r.orc.Report(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="report-`+id+`.zip"`)
	c.Data(http.StatusOK, "application/zip", b)
}

func (r *Router) handleSummary(c *gin.Context) {
	s, err := r.orc.Summary(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (r *Router) handleConsole(c *gin.Context) {
	p, err := r.orc.ConsoleLogPath(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.File(p)
}

func (r *Router) handleInstallationStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orc.InstallationStatus())
}

func (r *Router) handleInstallationVerify(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orc.VerifyInstallation(c.Request.Context()))
}

// handleInstall accepts either a multipart distribution archive upload or a
// JSON body pointing at an existing directory on the host.
func (r *Router) handleInstall(c *gin.Context) {
	if fh, err := c.FormFile("archive"); err == nil {
		f, err := fh.Open()
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		defer func() { _ = f.Close() }()
		st, err := r.orc.InstallArchive(c.Request.Context(), fh.Filename, f)
		if err != nil {
			writeError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, st)
		return
	}
	var req installReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "multipart field 'archive' or JSON body with path required"})
		return
	}
	if !isSafeAbsPath(req.Path) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "path must be absolute without traversal"})
		return
	}
	st, err := r.orc.ConfigureInstallation(c.Request.Context(), req.Path)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleClearInstallation(c *gin.Context) {
	if err := r.orc.ClearInstallation(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// writeError maps pipeline errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, execution.ErrNotFound):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, orchestrator.ErrActiveExecutions):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	case errors.Is(err, installer.ErrExtraction),
		errors.Is(err, execution.ErrInvalidConfiguration):
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

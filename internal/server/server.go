package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portal/internal"
	"portal/internal/assignments"
)

type Repository interface {
	ListAssignments(filter internal.AssignmentFilter) ([]internal.Assignment, error)
	UpdateAssignmentStatus(id int64, status internal.AssignmentStatus) (bool, error)
	InsertImportRun(run internal.ImportRun) error
	GetImportRun(id string) (*internal.ImportRun, error)
	ListImportRuns(limit int) ([]internal.ImportRun, error)
}

type Server struct {
	importer *assignments.Importer
	repo     Repository
	tokens   map[string]string
	logger   *zap.Logger
}

const userKey = "portal.user"

func New(importer *assignments.Importer, repo Repository, tokens map[string]string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{importer: importer, repo: repo, tokens: tokens, logger: logger}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", s.auth())
	api.POST("/assignments/import", s.importAssignments)
	api.GET("/assignments/template", s.template)
	api.GET("/assignments", s.listAssignments)
	api.PATCH("/assignments/:id/status", s.updateStatus)
	api.GET("/imports", s.listImports)
	api.GET("/imports/:id", s.getImport)
	return router
}

func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		user, known := s.tokens[strings.TrimSpace(token)]
		if !ok || !known {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}

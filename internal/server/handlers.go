package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tsawler/redactor"
	"github.com/tsawler/redactor/format"
	"github.com/tsawler/redactor/internal/history"
	"github.com/tsawler/redactor/model"
)

// statusClientClosedRequest is the non-standard status for requests the
// client abandoned.
const statusClientClosedRequest = 499

const downloadPrefix = "/uploads/"

// UploadResponse is returned for a published output.
type UploadResponse struct {
	ID       string        `json:"id"`
	Download string        `json:"download"`
	Report   *model.Report `json:"report"`
}

// ErrorResponse is returned for a failed job.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Kind      string           `json:"kind,omitempty"`
	Locations []model.Location `json:"locations,omitempty"`
}

func (s *Server) rootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "File Redaction System API is running"})
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	body := gin.H{
		"status":        "healthy",
		"service":       "file-redaction-api",
		"rules_version": s.rules.Current().Version(),
	}
	if err := s.history.Ping(ctx); err != nil {
		s.logger.Error("History database unreachable", "error", err)
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.UnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case model.FormatMismatch, model.CorruptInput, model.PartialRedactionFailure, model.ResidualContentDetected:
		return http.StatusUnprocessableEntity
	case model.EncryptedOrProtected:
		return http.StatusLocked
	case model.Cancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) uploadHandler(c *gin.Context) {
	f, err := format.Parse(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unsupported file type"})
		return
	}
	email := strings.TrimSpace(c.PostForm("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "email is required"})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
		return
	}
	if header.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
		return
	}

	in, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file unreadable"})
		return
	}
	defer in.Close()

	id := uuid.NewString()
	logger := s.logger.With("job_id", id, "format", f.String())

	res, err := s.engine.RedactReader(c.Request.Context(), in, f, s.rules.Current())
	if err != nil {
		logger.Warn("Redaction rejected", "kind", model.KindOf(err).String())
		resp := ErrorResponse{Error: err.Error(), Kind: model.KindOf(err).String()}
		var me *model.Error
		if errors.As(err, &me) {
			resp.Locations = me.Locations
		}
		c.JSON(statusFor(err), resp)
		return
	}

	name := "redacted_" + id + "_" + safeName(header.Filename, f)
	if err := redactor.Publish(filepath.Join(s.cfg.UploadDir, name), res.Output); err != nil {
		logger.Error("Publishing output failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "output could not be stored"})
		return
	}

	if _, err := s.history.Record(c.Request.Context(), history.Entry{
		Email:    email,
		Filename: name,
		Format:   f.String(),
		Digest:   res.Report.OutputDigest,
	}); err != nil {
		logger.Error("Recording history failed", "error", err)
		s.removeOutput(name)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "history could not be recorded"})
		return
	}

	logger.Info("Redaction published", "neutralized", len(res.Report.Neutralized))
	c.JSON(http.StatusOK, UploadResponse{ID: id, Download: downloadPrefix + name, Report: res.Report})
}

func (s *Server) listHistoryHandler(c *gin.Context) {
	entries, err := s.history.List(c.Request.Context(), c.Param("email"))
	if err != nil {
		s.logger.Error("Listing history failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "history unavailable"})
		return
	}
	for i := range entries {
		entries[i].Filename = downloadPrefix + entries[i].Filename
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) deleteHistoryHandler(c *gin.Context) {
	removed, err := s.history.DeleteAll(c.Request.Context(), c.Param("email"))
	if err != nil {
		s.logger.Error("Deleting history failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "history unavailable"})
		return
	}
	for _, e := range removed {
		s.removeOutput(e.Filename)
	}
	c.JSON(http.StatusOK, gin.H{"message": "All download history deleted", "deleted": len(removed)})
}

func (s *Server) deleteHistoryItemHandler(c *gin.Context) {
	email := c.Query("email")
	name := strings.TrimPrefix(c.Query("filename"), downloadPrefix)
	if email == "" || name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "email and filename are required"})
		return
	}
	err := s.history.Delete(c.Request.Context(), email, name)
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "history item not found"})
		return
	}
	if err != nil {
		s.logger.Error("Deleting history item failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "history unavailable"})
		return
	}
	s.removeOutput(name)
	c.JSON(http.StatusOK, gin.H{"message": "History item deleted"})
}

// removeOutput deletes a published file. Only names directly inside the
// upload directory are accepted.
func (s *Server) removeOutput(name string) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		s.logger.Warn("Refusing to remove file outside upload directory")
		return
	}
	if err := os.Remove(filepath.Join(s.cfg.UploadDir, name)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Removing output failed", "error", err)
	}
}

// safeName reduces a client filename to a base name without path
// separators, falling back to a name with the format's extension.
func safeName(name string, f format.Format) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "upload" + f.Extension()
	}
	return name
}

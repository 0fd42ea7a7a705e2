package ui

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html static/*
var embeddedFiles embed.FS

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs()).ParseFS(embeddedFiles, "templates/*.html")
}

// renderTemplate executes a page into a buffer first so a template error
// never leaves a half-written response
func (s *Server) renderTemplate(c *gin.Context, status int, templateName string, data gin.H) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		s.logger.Error("template %s failed: %v", templateName, err)
		c.AbortWithStatusJSON(500, gin.H{"error": "template rendering failed", "code": "INTERNAL_ERROR"})
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Writer.WriteHeader(status)
	if _, err := buf.WriteTo(c.Writer); err != nil {
		s.logger.Warn("writing %s response: %v", templateName, err)
	}
}

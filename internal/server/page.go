package server

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/ajramos/keycheck/internal/version"
)

//go:embed page.html
var pageHTML string

var pageTmpl = template.Must(template.New("page").Parse(pageHTML))

type pageData struct {
	Application string
	URL         string
	Count       int
	Agent       string
	Version     string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config.GetConfig()
	cat, err := cfg.LoadCatalog()
	if err != nil {
		http.Error(w, "load catalog: "+err.Error(), http.StatusInternalServerError)
		return
	}
	data := pageData{
		Application: cat.Meta().Application,
		URL:         cat.Meta().URL,
		Count:       cat.Len(),
		Agent:       cfg.Agent.Kind,
		Version:     version.GetVersionString(),
	}
	if cfg.Target.Application != "" {
		data.Application = cfg.Target.Application
	}
	if cfg.Target.URL != "" {
		data.URL = cfg.Target.URL
	}
	if data.Application == "" {
		data.Application = "keycheck"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, data); err != nil {
		s.logf("render page: %v", err)
	}
}

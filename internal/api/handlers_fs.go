package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/sydlexius/scanarr/internal/filesystem"
)

type childrenResponse struct {
	Path        string                  `json:"path"`
	Children    []string                `json:"children"`
	Breadcrumbs []filesystem.Breadcrumb `json:"breadcrumbs"`
}

// handleFSChildren lists the subdirectories of path.
// GET /api/v1/fs/children?path=&show_hidden=
func (r *Router) handleFSChildren(w http.ResponseWriter, req *http.Request) {
	showHidden, err := queryBool(req, "show_hidden")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, ok := fsPath(w, req)
	if !ok {
		return
	}

	children, err := filesystem.ListChildren(path, filesystem.Options{ShowHidden: showHidden})
	if err != nil {
		writeFSError(w, err)
		return
	}
	crumbs, err := filesystem.ResolveBreadcrumbs(path)
	if err != nil {
		writeFSError(w, err)
		return
	}
	if children == nil {
		children = []string{}
	}
	writeJSON(w, http.StatusOK, childrenResponse{Path: path, Children: children, Breadcrumbs: crumbs})
}

// handleFSValidate reports whether path is a readable directory.
// GET /api/v1/fs/validate?path=
func (r *Router) handleFSValidate(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	resp := map[string]any{"path": path, "valid": true}
	if err := filesystem.Check(path); err != nil {
		resp["valid"] = false
		resp["reason"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFSBreadcrumbs splits path into its ancestors.
// GET /api/v1/fs/breadcrumbs?path=
func (r *Router) handleFSBreadcrumbs(w http.ResponseWriter, req *http.Request) {
	path, ok := fsPath(w, req)
	if !ok {
		return
	}
	crumbs, err := filesystem.ResolveBreadcrumbs(path)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, crumbs)
}

// handleFSTree expands path into a directory tree of bounded depth.
// GET /api/v1/fs/tree?path=&depth=&show_hidden=
func (r *Router) handleFSTree(w http.ResponseWriter, req *http.Request) {
	depth, err := queryInt(req, "depth", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	showHidden, err := queryBool(req, "show_hidden")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, ok := fsPath(w, req)
	if !ok {
		return
	}
	node, err := filesystem.Expand(path, depth, filesystem.Options{ShowHidden: showHidden})
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// fsPath returns the canonical form of the path query parameter, "/" when
// absent.
func fsPath(w http.ResponseWriter, req *http.Request) (string, bool) {
	raw := req.URL.Query().Get("path")
	if raw == "" {
		raw = "/"
	}
	path, err := filesystem.Canonicalize(raw)
	if err != nil {
		writeFSError(w, err)
		return "", false
	}
	return path, true
}

func writeFSError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, filesystem.ErrRelativePath):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, filesystem.ErrNotDirectory):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "path not found")
	case errors.Is(err, fs.ErrPermission):
		writeError(w, http.StatusForbidden, "permission denied")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

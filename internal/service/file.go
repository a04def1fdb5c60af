package service

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/irtimmer/rproxy/internal/rpcerr"
)

// File serves files from Base joined with the request path (minus its
// leading "/"). Per this design's Open Question (a) decision (DESIGN.md),
// the joined path is additionally confined to the canonicalized Base: any
// resolved path escaping Base is rejected rather than served, even though
// internal/httpingress.normalizePath has already collapsed ".." segments
// before the request reaches here.
type File struct {
	Base string
}

func (f File) Call(req *http.Request) (*http.Response, error) {
	rel := strings.TrimPrefix(req.URL.Path, "/")
	joined := filepath.Join(f.Base, rel)

	absBase, err := filepath.Abs(f.Base)
	if err != nil {
		return nil, rpcerr.IO("file-base", err)
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return nil, rpcerr.IO("file-path", err)
	}
	if absJoined != absBase && !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) {
		return nil, rpcerr.Protocolf("file-path", "path escapes base: %s", req.URL.Path)
	}

	file, err := os.Open(joined)
	if err != nil {
		return nil, rpcerr.IO("file-open", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, rpcerr.IO("file-stat", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, rpcerr.Protocolf("file-path", "is a directory: %s", req.URL.Path)
	}

	contentType := mime.TypeByExtension(filepath.Ext(joined))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := http.Header{
		"Content-Length": {strconv.FormatInt(info.Size(), 10)},
		"Content-Type":   {contentType},
	}

	resp := &http.Response{
		StatusCode:    http.StatusOK,
		Status:        http.StatusText(http.StatusOK),
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        header,
		Body:          file,
		ContentLength: info.Size(),
		Request:       req,
	}
	return resp, nil
}

var _ Service = File{}

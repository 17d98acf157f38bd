package vipsfit

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

type ServerConfig struct {
	SourceDir    string
	ThumbnailDir string
	AllowedExts  []string

	// ThumbnailQuality is the encode quality of cached thumbnails; zero
	// selects the codec default.
	ThumbnailQuality uint8

	// MaxUploadSize limits request bodies; zero means no limit.
	MaxUploadSize int64

	Pipeline *Pipeline
	Logger   hclog.Logger
}

// Server exposes the pipeline over HTTP.
type Server struct {
	conf    *ServerConfig
	handler http.Handler

	thumbnailMutex    sync.Mutex
	pendingThumbnails map[string][]chan error
}

func NewServer(conf ServerConfig) (*Server, error) {
	if conf.Pipeline == nil {
		return nil, fmt.Errorf("no pipeline configured")
	}
	if conf.Logger == nil {
		conf.Logger = hclog.NewNullLogger()
	}

	s := &Server{
		conf:              &conf,
		pendingThumbnails: make(map[string][]chan error),
	}

	mux := http.NewServeMux()
	mux.Handle("/source/", s.sourceHandler())
	mux.Handle("/thumbnail/", s.thumbnailHandler())
	mux.Handle("/render/", s.renderHandler())
	mux.Handle("/info/", s.infoHandler())
	mux.Handle("/process", s.processHandler())
	mux.Handle("/concurrency", s.concurrencyHandler())

	h := http.Handler(mux)
	h = s.slashRemover(h)
	s.handler = h
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) thumbnailHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" || r.Method == "HEAD" {
			s.serveThumbnail(w, r)
			return
		}

		http.Error(w, "Error", http.StatusBadRequest)
	})
}

var sizeRE = regexp.MustCompile(`^([0-9]{1,5})x([0-9]{1,5})$`)

// splitThumbnailPath splits "{W}x{H}/{key}".
func splitThumbnailPath(p string) (width, height int, key string, err error) {
	i := strings.IndexByte(p, '/')
	if i < 0 {
		return 0, 0, "", fmt.Errorf("missing size: %v", p)
	}
	m := sizeRE.FindStringSubmatch(p[:i])
	if m == nil {
		return 0, 0, "", fmt.Errorf("invalid size: %v", p[:i])
	}
	width, _ = strconv.Atoi(m[1])
	height, _ = strconv.Atoi(m[2])
	return width, height, p[i+1:], nil
}

func (s *Server) serveThumbnail(w http.ResponseWriter, r *http.Request) {
	width, height, key, err := splitThumbnailPath(strings.TrimSpace(removePrefix(r.URL.Path, "/thumbnail/")))
	if err == nil {
		err = s.validateKey(key)
	}
	if err != nil {
		s.conf.Logger.Error("Invalid key", "error", err)
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}

	thumb := path.Join(fmt.Sprintf("%dx%d", width, height), key)
	f, err := s.openThumbnail(thumb, key, width, height)
	if err != nil && !os.IsNotExist(err) {
		s.conf.Logger.Error("Failed to open thumbnail", "key", thumb, "error", err)
		http.Error(w, "Error", statusOf(err))
		return
	}
	if os.IsNotExist(err) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		s.conf.Logger.Error("Failed to get file info", "key", thumb, "error", err)
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}

	if r.Method == "HEAD" {
		w.Header().Set("content-type", mime.TypeByExtension(filepath.Ext(fi.Name())))
		w.Header().Set("content-length", strconv.FormatInt(fi.Size(), 10))
		w.Header().Set("last-modified", fi.ModTime().UTC().Format(http.TimeFormat))
		w.WriteHeader(200)
		return
	}

	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

func (s *Server) thumbnailPath(thumb string) string {
	return filepath.Join(s.conf.ThumbnailDir, keyFilepath(thumb))
}

func (s *Server) sourcePath(key string) string {
	return filepath.Join(s.conf.SourceDir, keyFilepath(key))
}

// openThumbnail opens a cached thumbnail, creating it first if needed.
// Concurrent requests for the same thumbnail wait for a single creation.
func (s *Server) openThumbnail(thumb, key string, width, height int) (*os.File, error) {
	p := s.thumbnailPath(thumb)
	s.conf.Logger.Debug("Open", "path", p)
	f, err := os.Open(p)
	if (err != nil && !os.IsNotExist(err)) || err == nil {
		return f, err
	}

	s.thumbnailMutex.Lock()
	ch := make(chan error, 1)
	s.pendingThumbnails[thumb] = append(s.pendingThumbnails[thumb], ch)
	if len(s.pendingThumbnails[thumb]) == 1 {
		go s.createThumbnail(thumb, key, p, width, height)
	}
	s.thumbnailMutex.Unlock()

	err = <-ch
	if err != nil {
		return nil, err
	}
	s.conf.Logger.Debug("Open", "path", p)
	return os.Open(p)
}

func (s *Server) createThumbnail(thumb, key, p string, width, height int) {
	_, err := os.Stat(p)
	if err != nil && !os.IsNotExist(err) {
		s.sendThumbnailResult(thumb, err)
		return
	}
	if err == nil {
		s.sendThumbnailResult(thumb, nil)
		return
	}

	src := s.sourcePath(key)
	if _, err := os.Stat(src); err != nil {
		s.sendThumbnailResult(thumb, err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(p), 0754); err != nil {
		s.sendThumbnailResult(thumb, err)
		return
	}

	err = s.conf.Pipeline.ProcessFileToFile(ImageFileRequest{
		Path: src,
		Resize: ResizeOptions{
			Width:  int32(width),
			Height: int32(height),
		},
		Save: SaveOptions{
			Quality: s.conf.ThumbnailQuality,
			Strip:   true,
			Path:    p,
		},
	})
	if err == nil {
		s.conf.Logger.Info("Thumbnail created", "key", thumb)
	}
	s.sendThumbnailResult(thumb, err)
}

func (s *Server) sendThumbnailResult(thumb string, err error) {
	s.thumbnailMutex.Lock()
	defer s.thumbnailMutex.Unlock()

	for _, ch := range s.pendingThumbnails[thumb] {
		if err != nil {
			ch <- err
		}
		close(ch)
	}
	delete(s.pendingThumbnails, thumb)
}

func (s *Server) renderHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Error", http.StatusBadRequest)
			return
		}

		key := strings.TrimSpace(removePrefix(r.URL.Path, "/render/"))
		if err := s.validateKey(key); err != nil {
			s.conf.Logger.Error("Invalid key", "error", err)
			http.Error(w, "Invalid key", http.StatusBadRequest)
			return
		}
		q, err := parseQuery(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		out, err := s.conf.Pipeline.ProcessFile(ImageFileRequest{
			Path:        s.sourcePath(key),
			Resize:      q.resize,
			Save:        q.save,
			IsPaginated: q.paginated,
			Page:        q.page,
			PageCount:   q.pageCount,
		})
		if err != nil {
			s.conf.Logger.Error("Failed to render", "key", key, "error", err)
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		writeImage(w, out.Format.MIME(), out.Bytes)
	})
}

func (s *Server) processHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Error", http.StatusBadRequest)
			return
		}
		q, err := parseQuery(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, err := s.readBody(w, r)
		if err != nil {
			s.conf.Logger.Error("Failed to read body", "error", err)
			http.Error(w, "Error", http.StatusBadRequest)
			return
		}

		out, err := s.conf.Pipeline.ProcessBytes(ImageBytesRequest{
			Bytes:       body,
			Resize:      q.resize,
			Save:        q.save,
			IsPaginated: q.paginated,
			Page:        q.page,
			PageCount:   q.pageCount,
		})
		if err != nil {
			s.conf.Logger.Error("Failed to process", "size", len(body), "error", err)
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		writeImage(w, out.Format.MIME(), out.Bytes)
	})
}

type imageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format Format `json:"format"`
}

func (s *Server) infoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Error", http.StatusBadRequest)
			return
		}
		key := strings.TrimSpace(removePrefix(r.URL.Path, "/info/"))
		if err := s.validateKey(key); err != nil {
			s.conf.Logger.Error("Invalid key", "error", err)
			http.Error(w, "Invalid key", http.StatusBadRequest)
			return
		}

		p := s.sourcePath(key)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		width, height, err := s.conf.Pipeline.ImageSizes(p)
		if err != nil {
			s.conf.Logger.Error("Failed to read sizes", "key", key, "error", err)
			http.Error(w, err.Error(), statusOf(err))
			return
		}
		format, err := s.conf.Pipeline.ImageFileFormat(p)
		if err != nil {
			s.conf.Logger.Error("Failed to read format", "key", key, "error", err)
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		w.Header().Set("content-type", "application/json")
		json.NewEncoder(w).Encode(imageInfo{Width: width, Height: height, Format: format})
	})
}

func (s *Server) concurrencyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PUT" && r.Method != "POST" {
			http.Error(w, "Error", http.StatusBadRequest)
			return
		}
		n, err := strconv.ParseUint(r.URL.Query().Get("n"), 10, 8)
		if err != nil || n == 0 {
			http.Error(w, "Invalid n", http.StatusBadRequest)
			return
		}
		s.conf.Pipeline.SetConcurrency(uint8(n))
		w.WriteHeader(200)
	})
}

func (s *Server) sourceHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" || r.Method == "HEAD" {
			s.serveSource(w, r)
			return
		}
		if r.Method == "PUT" {
			s.saveSource(w, r)
			return
		}

		http.Error(w, "Error", http.StatusBadRequest)
	})
}

func removePrefix(url, prefix string) string {
	return strings.Replace(url, prefix, "", 1)
}

func (s *Server) serveSource(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(removePrefix(r.URL.Path, "/source/"))
	err := s.validateKey(key)
	if err != nil {
		s.conf.Logger.Error("Invalid key", "error", err)
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}

	p := s.sourcePath(key)
	s.conf.Logger.Debug("Open", "path", p)
	f, err := os.Open(p)
	if err != nil && !os.IsNotExist(err) {
		s.conf.Logger.Error("Failed to open file", "path", p, "error", err)
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}
	if os.IsNotExist(err) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		s.conf.Logger.Error("Failed to get file info", "path", p, "error", err)
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}

	if r.Method == "HEAD" {
		w.Header().Set("content-type", mime.TypeByExtension(filepath.Ext(p)))
		w.Header().Set("content-length", strconv.FormatInt(fi.Size(), 10))
		w.Header().Set("last-modified", fi.ModTime().UTC().Format(http.TimeFormat))
		w.WriteHeader(200)
		return
	}

	s.conf.Logger.Debug("Serve", "path", p)
	http.ServeContent(w, r, p, fi.ModTime(), f)
}

// saveSource stores an upload. With resize or format parameters the upload
// is processed before it is stored.
func (s *Server) saveSource(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(removePrefix(r.URL.Path, "/source/"))
	err := s.validateKey(key)
	if err != nil {
		s.conf.Logger.Error("Invalid key", "error", err)
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}

	p := s.sourcePath(key)
	dir := filepath.Dir(p)
	err = os.MkdirAll(dir, 0754)
	if err != nil {
		s.conf.Logger.Error("Failed to create dir", "dir", dir, "error", err)
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}

	if _, err := os.Stat(p); err == nil {
		http.Error(w, "Exists", http.StatusConflict)
		return
	}

	if !hasProcessing(r.URL.Query()) {
		body := io.Reader(r.Body)
		if s.conf.MaxUploadSize > 0 {
			body = http.MaxBytesReader(w, r.Body, s.conf.MaxUploadSize)
		}
		_, err = s.writeFileMD5(p, body)
		if err != nil {
			s.conf.Logger.Error("Failed to write file", "path", p, "error", err)
			http.Error(w, "Error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(200)
		return
	}

	q, err := parseQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		s.conf.Logger.Error("Failed to read body", "error", err)
		http.Error(w, "Error", http.StatusBadRequest)
		return
	}
	q.save.Path = p
	err = s.conf.Pipeline.ProcessBytesToFile(ImageBytesRequest{
		Bytes:       body,
		Resize:      q.resize,
		Save:        q.save,
		IsPaginated: q.paginated,
		Page:        q.page,
		PageCount:   q.pageCount,
	})
	if err != nil {
		s.conf.Logger.Error("Failed to process upload", "path", p, "error", err)
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	if err := s.writeMD5(p); err != nil {
		s.conf.Logger.Error("Failed to write MD5 file", "path", p, "error", err)
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(200)
}

func keyFilepath(key string) string {
	return filepath.FromSlash(key)
}

var keyRE *regexp.Regexp = regexp.MustCompile(`^[a-zA-Z0-9/._-]+$`)

func (s *Server) validateKey(key string) error {
	if !keyRE.Match([]byte(key)) {
		return fmt.Errorf("invalid key: %v", key)
	}

	keyCopy := key
	key = path.Clean(keyCopy)
	if key != keyCopy ||
		key == "." ||
		key[0] == '/' ||
		strings.Contains(key, "..") {
		return fmt.Errorf("invalid key: %v", key)
	}

	ext := path.Ext(key)
	if ext == "" {
		return fmt.Errorf("no ext: %v", key)
	}

	validExt := false
	for _, e := range s.conf.AllowedExts {
		if strings.EqualFold(ext, e) {
			validExt = true
			break
		}
	}
	if !validExt {
		return fmt.Errorf("invalid ext: %v", key)
	}

	return nil
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := io.Reader(r.Body)
	if s.conf.MaxUploadSize > 0 {
		body = http.MaxBytesReader(w, r.Body, s.conf.MaxUploadSize)
	}
	return io.ReadAll(body)
}

func (s *Server) writeFileMD5(path string, r io.Reader) (int64, error) {
	s.conf.Logger.Debug("Write file", "path", path)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0754)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := md5.New()
	w := io.MultiWriter(f, h)
	n, err := io.Copy(w, r)
	if err != nil {
		return n, err
	}

	return n, s.writeMD5Sum(path, fmt.Sprintf("%x", h.Sum(nil)))
}

// writeMD5 writes the sidecar checksum of an existing file.
func (s *Server) writeMD5(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	return s.writeMD5Sum(path, fmt.Sprintf("%x", h.Sum(nil)))
}

func (s *Server) writeMD5Sum(path, sum string) error {
	pathMD5 := path + ".md5"
	s.conf.Logger.Debug("Write MD5 file", "path", pathMD5, "md5", sum)
	fmd5, err := os.OpenFile(pathMD5, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0754)
	if err != nil {
		return err
	}
	defer fmd5.Close()

	_, err = fmd5.Write([]byte(sum))
	return err
}

func (s *Server) slashRemover(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Google treats URLs with trailing slash
		// and URLs without trailing slash separately and equally.
		// Prefer non-trailing slash URLs over trailing slash URLs.
		p := r.URL.Path
		if p != "/" && p[len(p)-1] == '/' {
			p = strings.TrimRight(p, "/")
			http.Redirect(w, r, p, 301)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeImage(w http.ResponseWriter, ctype string, out []byte) {
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("content-type", ctype)
	w.Header().Set("content-length", strconv.Itoa(len(out)))
	w.WriteHeader(200)
	w.Write(out)
}

func statusOf(err error) int {
	switch {
	case IsKind(err, KindParseInput), IsKind(err, KindUnsupportedFormat):
		return http.StatusBadRequest
	case IsKind(err, KindLoad):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type query struct {
	resize    ResizeOptions
	save      SaveOptions
	paginated bool
	page      int32
	pageCount int32
}

var processingParams = []string{"width", "height", "type", "format", "quality", "strip", "compression", "page", "pages"}

func hasProcessing(v url.Values) bool {
	for _, k := range processingParams {
		if _, ok := v[k]; ok {
			return true
		}
	}
	return false
}

func parseQuery(v url.Values) (query, error) {
	var q query
	var err error

	num := func(key string, bits int) int64 {
		if err != nil || v.Get(key) == "" {
			return 0
		}
		var n int64
		n, err = strconv.ParseInt(v.Get(key), 10, bits)
		if err != nil {
			err = newError(KindParseInput, "invalid %s: %q", key, v.Get(key))
		}
		return n
	}

	q.resize.Width = int32(num("width", 32))
	q.resize.Height = int32(num("height", 32))
	quality := num("quality", 16)
	compression := num("compression", 16)
	q.page = int32(num("page", 32))
	q.pageCount = int32(num("pages", 32))
	if err != nil {
		return q, err
	}
	if quality < 0 || quality > 100 {
		return q, newError(KindParseInput, "quality out of range: %d", quality)
	}
	if compression < 0 || compression > 9 {
		return q, newError(KindParseInput, "compression out of range: %d", compression)
	}
	q.save.Quality = uint8(quality)
	q.save.Compression = uint8(compression)
	_, q.paginated = v["page"]
	if _, ok := v["pages"]; ok {
		q.paginated = true
	}

	if q.resize.ResizeType, err = ParseResizeType(v.Get("type")); err != nil {
		return q, err
	}
	if q.save.Format, err = ParseFormat(v.Get("format")); err != nil {
		return q, err
	}
	if s := v.Get("strip"); s != "" {
		if q.save.Strip, err = strconv.ParseBool(s); err != nil {
			return q, newError(KindParseInput, "invalid strip: %q", s)
		}
	}
	return q, nil
}

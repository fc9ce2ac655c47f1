package testutil

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const maxRedirects = 10

// Replayer answers requests from a recorded HAR, either as a rod hijack
// handler for browser tests or as an http.Handler for the downloader.
// URLs match exactly first, then by scheme, host and path.
type Replayer struct {
	exact       map[string]*HAREntry
	byPath      map[string]*HAREntry
	passthrough bool
	logger      *zap.Logger
}

type ReplayerOption func(*Replayer)

// WithPassthrough lets unmatched browser requests reach the network.
// Unmatched requests get a 404 otherwise.
func WithPassthrough(enabled bool) ReplayerOption {
	return func(r *Replayer) {
		r.passthrough = enabled
	}
}

// WithLogger logs every match decision at debug level.
func WithLogger(logger *zap.Logger) ReplayerOption {
	return func(r *Replayer) {
		r.logger = logger
	}
}

func NewReplayer(har *HARLog, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		exact:  make(map[string]*HAREntry),
		byPath: make(map[string]*HAREntry),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := range har.Entries {
		entry := &har.Entries[i]
		r.exact[entry.Request.URL] = entry
		// First occurrence wins for path matches
		if key, ok := pathKey(entry.Request.URL); ok {
			if _, exists := r.byPath[key]; !exists {
				r.byPath[key] = entry
			}
		}
	}
	return r
}

func pathKey(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.Path, true
}

// Lookup returns the entry recorded for rawURL, following recorded 3xx
// responses to their target when it is in the HAR too.
func (r *Replayer) Lookup(rawURL string) (*HAREntry, bool) {
	entry, found := r.find(rawURL)
	if !found {
		r.logger.Debug("replay_no_match", zap.String("url", rawURL))
		return nil, false
	}

	for i := 0; i < maxRedirects; i++ {
		status := entry.Response.Status
		if status < 300 || status >= 400 {
			break
		}
		location := header(entry.Response.Headers, "location")
		target, ok := r.find(location)
		if location == "" || !ok {
			break
		}
		r.logger.Debug("replay_redirect", zap.Int("status", status), zap.String("location", location))
		entry = target
	}

	r.logger.Debug("replay_match", zap.String("url", rawURL), zap.Int("status", entry.Response.Status))
	return entry, true
}

func (r *Replayer) find(rawURL string) (*HAREntry, bool) {
	if entry, ok := r.exact[rawURL]; ok {
		return entry, true
	}
	key, ok := pathKey(rawURL)
	if !ok {
		return nil, false
	}
	entry, ok := r.byPath[key]
	return entry, ok
}

func header(headers []HARHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// replayedHeaders drops headers that no longer describe the decoded body.
func replayedHeaders(resp HARResponse) []HARHeader {
	out := make([]HARHeader, 0, len(resp.Headers)+1)
	hasContentType := false
	for _, h := range resp.Headers {
		switch strings.ToLower(h.Name) {
		case "content-encoding", "content-length", "location":
			continue
		case "content-type":
			hasContentType = true
		}
		out = append(out, h)
	}
	if !hasContentType && resp.Content.MimeType != "" {
		out = append(out, HARHeader{Name: "Content-Type", Value: resp.Content.MimeType})
	}
	return out
}

// Middleware returns a rod hijack handler serving recorded responses.
// Use with router.MustAdd("*", replayer.Middleware()).
func (r *Replayer) Middleware() func(*rod.Hijack) {
	return func(ctx *rod.Hijack) {
		reqURL := ctx.Request.URL().String()

		entry, found := r.Lookup(reqURL)
		if !found {
			if r.passthrough {
				_ = ctx.LoadResponse(http.DefaultClient, true)
				return
			}
			payload := ctx.Response.Payload()
			payload.ResponseCode = http.StatusNotFound
			payload.ResponseHeaders = []*proto.FetchHeaderEntry{{Name: "Content-Type", Value: "application/json"}}
			payload.Body = []byte(`{"error": "no recording found for URL"}`)
			return
		}

		var headers []*proto.FetchHeaderEntry
		for _, h := range replayedHeaders(entry.Response) {
			headers = append(headers, &proto.FetchHeaderEntry{Name: h.Name, Value: h.Value})
		}
		payload := ctx.Response.Payload()
		payload.ResponseCode = entry.Response.Status
		payload.ResponseHeaders = headers
		payload.Body = entry.Response.Content.Body()
	}
}

// ServeHTTP serves the recording for the request's path and query,
// rebased on the recorded hosts: a test server can stand in for any of
// them.
func (r *Replayer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	entry, found := r.findByRequestURI(req.URL.RequestURI())
	if !found {
		http.Error(w, `{"error": "no recording found for URL"}`, http.StatusNotFound)
		return
	}
	for _, h := range replayedHeaders(entry.Response) {
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(entry.Response.Status)
	_, _ = w.Write(entry.Response.Content.Body())
}

func (r *Replayer) findByRequestURI(requestURI string) (*HAREntry, bool) {
	for recorded := range r.exact {
		parsed, err := url.Parse(recorded)
		if err != nil || parsed.RequestURI() != requestURI {
			continue
		}
		return r.Lookup(recorded)
	}
	return nil, false
}

// Stats reports the size of the lookup indexes.
func (r *Replayer) Stats() map[string]int {
	return map[string]int{
		"exact_matches": len(r.exact),
		"path_matches":  len(r.byPath),
	}
}

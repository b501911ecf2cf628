package transport

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// route names one backend endpoint. The name doubles as the span name suffix
// and the log field for the operation.
type route struct {
	name   string
	method string
	path   string
}

var (
	routeLogin        = route{name: "login", method: http.MethodPost, path: "/api/login"}
	routeSheetData    = route{name: "fetchSheetData", method: http.MethodGet, path: "/api/data"}
	routeSavePPC      = route{name: "savePPC", method: http.MethodPost, path: "/api/savePPC"}
	routeSystemConfig = route{name: "systemConfig", method: http.MethodGet, path: "/api/config"}
	routeNextSequence = route{name: "nextSequence", method: http.MethodGet, path: "/api/nextSeq"}
	routeTranscribe   = route{name: "transcribeAndAnalyze", method: http.MethodPost, path: "/api/transcribe_and_analyze"}
	routePing         = route{name: "ping", method: http.MethodGet, path: "/"}
)

// Routes lists every endpoint the client can reach, keyed by operation name.
func Routes() map[string]string {
	all := []route{routeLogin, routeSheetData, routeSavePPC, routeSystemConfig, routeNextSequence, routeTranscribe, routePing}
	out := make(map[string]string, len(all))
	for _, r := range all {
		out[r.name] = r.method + " " + r.path
	}
	return out
}

// encodeQuery percent-encodes values the way browsers' encodeURIComponent
// does for spaces (%20, not +), with keys in a stable order.
func encodeQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escapeComponent(k))
			b.WriteByte('=')
			b.WriteString(escapeComponent(v))
		}
	}
	return b.String()
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
)

// ReverseProxy forwards admitted requests to the guarded backend. The
// admission decision itself was already written onto the response by
// middleware.AdmissionMiddleware earlier in the chain; this stays a plain
// passthrough so it can sit behind that middleware as an ordinary handler.
type ReverseProxy struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
}

func NewReverseProxy(targetURL string) (*ReverseProxy, error) {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Set("X-Proxy", "admission-gateway")
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error": "backend service unavailable"}`))
	}

	return &ReverseProxy{
		target: target,
		proxy:  proxy,
	}, nil
}

func (rp *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Host = rp.target.Host
	rp.proxy.ServeHTTP(w, r)
}

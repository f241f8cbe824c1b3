package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmora/duplexlink/conformance"
)

type conformanceReqConv struct{}

func (conformanceReqConv) FromHTTPRequest(r *http.Request) (conformance.Request, bool) {
	if r.URL.Path != "/conformance" {
		return conformance.Request{}, false
	}
	var req conformance.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return conformance.Request{}, false
	}
	return req, true
}

func (conformanceReqConv) ToHTTPRequest(req conformance.Request) (string, string, any, bool) {
	return http.MethodPost, "/conformance", req, true
}

type conformanceRespConv struct{}

func (conformanceRespConv) FromHTTPResult(_ int, body json.RawMessage, _ conformance.Request) (conformance.Response, error) {
	var r conformance.Response
	err := json.Unmarshal(body, &r)
	return r, err
}
func (conformanceRespConv) FromHTTPEvent(payload json.RawMessage, _ conformance.Request) (conformance.Response, error) {
	var r conformance.Response
	err := json.Unmarshal(payload, &r)
	return r, err
}
func (conformanceRespConv) ToHTTPResult(resp conformance.Response) (int, any, error) {
	return http.StatusOK, resp, nil
}
func (conformanceRespConv) ToHTTPEventPayload(resp conformance.Response) (any, error) {
	return resp, nil
}

func TestConformance(t *testing.T) {
	conformance.RunServiceTests(t, conformance.Config{
		Factory: func(t *testing.T) (conformance.Client[conformance.Request, conformance.Response], func()) {
			s := NewServer[conformance.Request, conformance.Response](conformance.Handler, conformanceReqConv{}, conformanceRespConv{})
			srv := httptest.NewServer(s.engine)
			c := NewClient[conformance.Request, conformance.Response](conformanceReqConv{}, conformanceRespConv{},
				WithBaseURL(srv.URL), WithClientTimeout(300*time.Millisecond))
			return c, srv.Close
		},
		// HTTP carries all five categories losslessly (spec §6): status code
		// round-trips through CategoryFromHTTPStatus/HTTPStatus exactly.
	})
}

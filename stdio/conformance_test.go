//go:build !windows

package stdio

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dmora/duplexlink"
	"github.com/dmora/duplexlink/conformance"
)

// conformanceReqConv/conformanceRespConv wire conformance.Request/Response
// onto the JSON-RPC conventions the shell stand-in server below expects:
// the method name is the request's Mode, and params/result/notification
// params all carry the struct's default (capitalised, untagged) field
// names.
type conformanceReqConv struct{}

func (conformanceReqConv) FromJSONRPCRequest(method string, params json.RawMessage) (conformance.Request, bool) {
	return conformance.Request{}, false
}

func (conformanceReqConv) ToJSONRPCRequest(req conformance.Request) (string, any, bool) {
	mode := req.Mode
	if mode == "" {
		mode = "echo"
	}
	return mode, req, true
}

type conformanceRespConv struct{}

func (conformanceRespConv) FromJSONRPCResult(result json.RawMessage, _ conformance.Request) (conformance.Response, error) {
	var r conformance.Response
	err := json.Unmarshal(result, &r)
	return r, err
}
func (conformanceRespConv) FromJSONRPCNotification(params json.RawMessage, _ conformance.Request) (conformance.Response, error) {
	var r conformance.Response
	err := json.Unmarshal(params, &r)
	return r, err
}
func (conformanceRespConv) ToJSONRPCResult(resp conformance.Response) (any, error) {
	return resp, nil
}
func (conformanceRespConv) ToJSONRPCNotificationParams(resp conformance.Response) (any, error) {
	return resp, nil
}

// conformanceServerScript is a /bin/sh stand-in for a stdio server
// dispatching to conformance.Handler: one request per line in, JSON-RPC
// wire frames out. It reproduces the lossy category collapse
// jsonrpc.CodeForCategory performs (spec §6) so the "fail" mode exercises
// the same collapse a real stdio.Server would.
const conformanceServerScript = `
while IFS= read -r line; do
  id=$(printf '%s' "$line" | jq -c '.id')
  method=$(printf '%s' "$line" | jq -r '.method')
  case "$method" in
    echo)
      val=$(printf '%s' "$line" | jq -c '.params.Echo')
      printf '{"jsonrpc":"2.0","id":%s,"result":{"Echo":%s}}\n' "$id" "$val"
      ;;
    stream)
      printf '%s' "$line" | jq -c '.params.Items[]' | while IFS= read -r item; do
        printf '{"jsonrpc":"2.0","method":"%s","params":{"result":{"Echo":%s}}}\n' "$id" "$item"
      done
      printf '{"jsonrpc":"2.0","method":"%s"}\n' "$id"
      ;;
    fail)
      category=$(printf '%s' "$line" | jq -r '.params.Category')
      case "$category" in
        bad_request|unauthorized) code=-32600 ;;
        *) code=-32603 ;;
      esac
      printf '{"jsonrpc":"2.0","id":%s,"error":{"code":%s,"message":"synthetic failure"}}\n' "$id" "$code"
      ;;
    hang)
      ;;
  esac
done
`

func TestConformance(t *testing.T) {
	conformance.RunServiceTests(t, conformance.Config{
		Factory: func(t *testing.T) (conformance.Client[conformance.Request, conformance.Response], func()) {
			c, err := Dial[conformance.Request, conformance.Response](
				conformanceReqConv{}, conformanceRespConv{},
				"/bin/sh", []string{"-c", conformanceServerScript},
				WithTimeout(300*time.Millisecond),
			)
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			return c, func() { _ = c.Close() }
		},
		// JSON-RPC error codes only distinguish BadRequest/Unauthorized
		// (InvalidRequest) from everything else (InternalError): BadRequest
		// and Unauthorized both come back as BadRequest; NotFound,
		// MethodNotAllowed, and Internal all collapse to Internal (spec §6).
		ExpectedCategory: func(c duplexlink.ErrorCategory) duplexlink.ErrorCategory {
			switch c {
			case duplexlink.CategoryBadRequest, duplexlink.CategoryUnauthorized:
				return duplexlink.CategoryBadRequest
			default:
				return duplexlink.CategoryInternal
			}
		},
	})
}

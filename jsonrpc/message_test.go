package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmora/duplexlink"
)

func TestParse_DiscriminatesRequest(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","method":"sayHello","params":{"name":"Bob"},"id":1}`))
	require.NoError(t, err)
	require.Equal(t, KindRequest, msg.Kind)
	assert.Equal(t, int64(1), msg.Request.ID)
	assert.Equal(t, "sayHello", msg.Request.Method)
}

func TestParse_DiscriminatesResponse(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","result":{"result":"Hello, Bob!"},"id":1}`))
	require.NoError(t, err)
	require.Equal(t, KindResponse, msg.Kind)
	assert.Equal(t, int64(1), msg.Response.ID)
}

func TestParse_DiscriminatesNotification(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","method":"1","params":{"result":{"character":"H"}}}`))
	require.NoError(t, err)
	require.Equal(t, KindNotification, msg.Kind)
	assert.Equal(t, "1", msg.Notification.Method)
	assert.False(t, msg.Notification.IsEndOfStream(), "a notification carrying params is not end-of-stream")
}

func TestNotification_EndOfStreamSentinel(t *testing.T) {
	for _, params := range [][]byte{nil, []byte("null")} {
		n := Notification{Method: "1", Params: params}
		assert.Truef(t, n.IsEndOfStream(), "IsEndOfStream() for params %q", params)
	}
}

func TestCategoryCode_RoundTripNeverDowngradesToInternalFromBadRequest(t *testing.T) {
	// P6: a BadRequest never becomes Internal across the lossy round trip.
	for _, c := range []duplexlink.ErrorCategory{duplexlink.CategoryBadRequest, duplexlink.CategoryUnauthorized} {
		code := CodeForCategory(c)
		assert.Equal(t, duplexlink.CategoryBadRequest, CategoryForCode(code))
	}
}

func TestCategoryCode_NotFoundAndMethodNotAllowedCollapseToInternalCode(t *testing.T) {
	for _, c := range []duplexlink.ErrorCategory{duplexlink.CategoryNotFound, duplexlink.CategoryMethodNotAllowed} {
		assert.Equal(t, CodeInternalError, CodeForCategory(c))
	}
}

func TestErrorObjectRoundTrip(t *testing.T) {
	pe := duplexlink.Errorf(duplexlink.CategoryBadRequest, "bad input: %s", "oops")
	obj := ErrorObjectFor(pe)
	back := ProtocolErrorFor(obj)
	assert.Equal(t, duplexlink.CategoryBadRequest, back.Category)
}

func TestNotificationResultParams_ErrorUsesProtocolErrorWireShape(t *testing.T) {
	// spec §6: a stream item's error is {"error_type":..., "description":...},
	// not the JSON-RPC code/message ErrorObject a terminal Response carries.
	pe := duplexlink.Errorf(duplexlink.CategoryNotFound, "no such session")
	payload := pe.Payload()
	data, err := json.Marshal(NotificationResultParams{Error: &payload})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error_type":"not_found"`)
	assert.NotContains(t, string(data), `"code"`)
}

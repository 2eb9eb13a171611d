package server

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/tpcKV/lib/cache"
	"github.com/ValentinKolb/tpcKV/lib/db/engines/memory"
	"github.com/ValentinKolb/tpcKV/lib/secret"
	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/lib/store/kvnode"
	"github.com/ValentinKolb/tpcKV/lib/tpc"
	"github.com/ValentinKolb/tpcKV/lib/wal"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
	"github.com/spf13/afero"
)

func newTestSlaveAdapter(t *testing.T) IRPCServerAdapter {
	t.Helper()

	c, err := cache.New(16, nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	l, err := wal.Open(afero.NewMemMapFs(), "slave.wal")
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	return NewSlaveServerAdapter(tpc.NewParticipant(1, kvnode.NewKeyValueNode(memory.NewMemoryDB(), c), l))
}

func TestSlaveAdapterProtocol(t *testing.T) {
	adapter := newTestSlaveAdapter(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		req      *common.Message
		wantType common.MessageType
		wantNil  bool
		check    func(t *testing.T, resp *common.Message)
	}{
		{
			name:     "prepare put",
			req:      common.NewPrepareRequest(1, false, "k", []byte("v")),
			wantType: common.MsgTReady,
			check: func(t *testing.T, resp *common.Message) {
				if resp.OpID != 1 || resp.Status != common.StatusFalse {
					t.Errorf("Unexpected vote %+v", resp)
				}
			},
		},
		{
			name:     "commit put",
			req:      common.NewDecision(1, true),
			wantType: common.MsgTAck,
		},
		{
			name:     "repeated commit",
			req:      common.NewDecision(1, true),
			wantType: common.MsgTAck,
		},
		{
			name:     "read committed value",
			req:      common.NewGetRequest("k"),
			wantType: common.MsgTResp,
			check: func(t *testing.T, resp *common.Message) {
				if string(resp.Value) != "v" {
					t.Errorf("Expected v, got %q", resp.Value)
				}
			},
		},
		{
			name:     "prepare overwrite",
			req:      common.NewPrepareRequest(2, false, "k", []byte("w")),
			wantType: common.MsgTReady,
			check: func(t *testing.T, resp *common.Message) {
				if resp.Status != common.StatusTrue {
					t.Errorf("Expected existed vote, got %+v", resp)
				}
			},
		},
		{
			name:     "abort overwrite",
			req:      common.NewDecision(2, false),
			wantType: common.MsgTAck,
		},
		{
			name:     "prepare delete of missing key",
			req:      common.NewPrepareRequest(3, true, "missing", nil),
			wantType: common.MsgTAbort,
			check: func(t *testing.T, resp *common.Message) {
				if !errors.Is(store.ParseError(resp.Message), store.ErrNotFound) {
					t.Errorf("Expected not found reason, got %q", resp.Message)
				}
			},
		},
		{
			name:    "commit of unknown operation",
			req:     common.NewDecision(99, true),
			wantNil: true,
		},
		{
			name:     "write without operation id",
			req:      common.NewPutRequest("k", []byte("v")),
			wantType: common.MsgTResp,
			check: func(t *testing.T, resp *common.Message) {
				if !errors.Is(resp.Err(), store.ErrInvalid) {
					t.Errorf("Expected invalid operation, got %v", resp.Err())
				}
			},
		},
		{
			name:     "key exchange is not served",
			req:      common.NewKeyRequest(),
			wantType: common.MsgTResp,
			check: func(t *testing.T, resp *common.Message) {
				if !errors.Is(resp.Err(), store.ErrInvalid) {
					t.Errorf("Expected invalid operation, got %v", resp.Err())
				}
			},
		},
	}

	// The cases build on each other and run in order
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := adapter.Handle(ctx, tt.req)
			if tt.wantNil {
				if resp != nil {
					t.Fatalf("Expected no response, got %+v", resp)
				}
				return
			}
			if resp == nil {
				t.Fatal("Expected a response")
			}
			if resp.MsgType != tt.wantType {
				t.Fatalf("Expected %s, got %s (%+v)", tt.wantType, resp.MsgType, resp)
			}
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}

	// The aborted overwrite left the committed value untouched
	resp := adapter.Handle(ctx, common.NewGetRequest("k"))
	if string(resp.Value) != "v" {
		t.Errorf("Expected v after abort, got %q", resp.Value)
	}
}

func TestRPCServerHandle(t *testing.T) {
	s := serializer.NewJSONSerializer()
	ring := tpc.NewRing()
	server := NewRPCServer("registration endpoint", nopTransport{}, s, NewRegistrationServerAdapter(ring))

	tests := []struct {
		name    string
		req     []byte
		wantErr error
	}{
		{"garbage", []byte("{not json"), store.ErrProtocol},
		{"missing type", []byte(`{"message": "1@localhost:80"}`), store.ErrProtocol},
		{"wrong endpoint", []byte(`{"type": "getreq", "key": "aw=="}`), store.ErrInvalid},
		{"bad slave info", []byte(`{"type": "register", "message": "nope"}`), store.ErrRegistration},
		{"register", []byte(`{"type": "register", "message": "1@localhost:80"}`), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp common.Message
			if err := s.Deserialize(server.handle(tt.req), &resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.MsgType != common.MsgTResp {
				t.Fatalf("Expected resp, got %s", resp.MsgType)
			}
			if err := resp.Err(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, ok := ring.Get(1); !ok {
		t.Error("Expected slave 1 on the ring")
	}
}

func TestClientAdapterKeyExchange(t *testing.T) {
	adapter := NewClientServerAdapter(nil, secret.NewStaticKeySource("c2VjcmV0"))
	resp := adapter.Handle(context.Background(), common.NewKeyRequest())
	if resp.MsgType != common.MsgTResp || resp.Message != "c2VjcmV0" {
		t.Errorf("Unexpected response %+v", resp)
	}
}

// nopTransport is a server transport that never receives requests
type nopTransport struct{}

func (nopTransport) RegisterHandler(transport.ServerHandleFunc)        {}
func (nopTransport) Bind(common.ServerTransportConfig) (string, error) { return "", nil }
func (nopTransport) Serve() error                                      { return nil }
func (nopTransport) Close() error                                      { return nil }
